package executor

import "errors"

// ErrStopped — батч остановлен на ошибке элемента (StopOnError).
var ErrStopped = errors.New("batch stopped on item error")

package diagnostics

import (
	"errors"
	"fmt"
)

// ErrBatchStopped — батч остановлен на первой ошибке (StopOnError).
var ErrBatchStopped = errors.New("batch stopped on item error")

// Error — ошибка, исчерпавшая политику повторов.
type Error struct {
	Diagnosis Diagnosis
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Diagnosis.Category, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

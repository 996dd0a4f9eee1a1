package cache

import "errors"

// ErrMiss — ключ отсутствует или истёк.
var ErrMiss = errors.New("cache miss")

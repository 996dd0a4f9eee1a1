package config

import "errors"

// ErrInvalidConfig — конфигурация не прошла разбор или проверку.
var ErrInvalidConfig = errors.New("invalid config")

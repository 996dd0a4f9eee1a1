package llm

import "errors"

var (
	// ErrEmptyResponse — модель не вернула текст.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrInvalidResponse — ответ модели не содержит валидного JSON.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrNoAPIKey — не задан ключ API.
	ErrNoAPIKey = errors.New("api key not set")
)

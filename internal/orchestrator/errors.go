package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrSessionNotFound — для сессии нет чекпоинта.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy — по сессии уже выполняется ход.
	ErrSessionBusy = errors.New("session is busy")

	// ErrSessionFailed — сессия остановлена невосстановимой ошибкой.
	ErrSessionFailed = errors.New("session failed")

	// ErrInvalidInput — некорректные записи или идентификатор сессии.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStageLoop — роутер не пришёл к терминальной стадии за MaxSteps шагов.
	ErrStageLoop = errors.New("stage loop did not terminate")
)

package hitl

import "errors"

var (
	// ErrItemNotFound — элемент очереди не найден.
	ErrItemNotFound = errors.New("hitl item not found")

	// ErrItemAlreadyDecided — по элементу уже принято решение.
	ErrItemAlreadyDecided = errors.New("hitl item already decided")

	// ErrInvalidDecision — решение не проходит валидацию.
	ErrInvalidDecision = errors.New("invalid hitl decision")
)

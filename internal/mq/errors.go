package mq

import "errors"

// ErrNoChannel — канал недоступен (соединение разорвано или закрыто).
var ErrNoChannel = errors.New("no amqp channel available")

// permanentError помечает ошибку обработки, при которой сообщение
// не возвращается в очередь, а уходит в DLQ.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку обработчика: сообщение не будет
// повторно доставлено.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка как Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

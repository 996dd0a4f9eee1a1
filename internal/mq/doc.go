// Package mq — транспорт RabbitMQ для событий сессий и решений проверки.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники, очереди, привязки
//   - publisher.go  — публикация событий и решений
//   - consumer.go   — потребление очереди hitl.decisions
//   - sink.go       — events.Notifier поверх Publisher
//
// Типы сообщений:
//   - session.progress       — завершён элемент стадии
//   - session.stage_changed  — переход между стадиями
//   - hitl.created           — создан элемент ручной проверки
//   - hitl.decision          — решение человека, применяется через Resume
package mq

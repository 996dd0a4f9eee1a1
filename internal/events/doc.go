// Package events доставляет уведомления о ходе обработки сессии.
//
// Оркестратор вызывает Notifier синхронно на своём пути, поэтому
// реализации не должны блокироваться. Dispatcher буферизует события
// и раздаёт их подписчикам в отдельной горутине; при переполнении
// буфера событие отбрасывается.
//
// Подписчики:
//   - LogSink   — пишет события в slog
//   - mq.EventPublisher — публикует события в RabbitMQ
package events

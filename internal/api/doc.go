// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go         — Handler с DI (сессии, очередь решений, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (recovery, request id, logging)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - session_handler.go — обработчики для /sessions
//
// Маршруты:
//
//	POST /api/v1/sessions/{id}/records    — подать записи и провести ход
//	POST /api/v1/sessions/{id}/decisions  — решение по элементу проверки (?async=true — через очередь)
//	GET  /api/v1/sessions/{id}            — состояние сессии
//	GET  /api/v1/sessions/{id}/hitl       — нерешённые элементы по приоритету
package api

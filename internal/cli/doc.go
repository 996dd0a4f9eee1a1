// Package cli реализует инструмент командной строки Procura.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Procura API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Procura API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	s, err := client.GetSession("batch-42")
//
// ## Output
//
// Форматирование вывода: таблицы (text/tabwriter) по умолчанию,
// JSON с флагом --json. Данные выводятся в stdout, сообщения в stderr:
//
//	procura session show batch-42 --json | jq .stage
//
// ## Commands
//
//   - session submit SESSION_ID --file records.yaml [--intent TEXT]
//   - session resume SESSION_ID ITEM_ID --action ACTION [--async]
//   - session show SESSION_ID
//   - session queue SESSION_ID
package cli

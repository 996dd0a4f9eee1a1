// Package diagnostics классифицирует ошибки и повторяет операции
// согласно политике категории.
//
// Категории проверяются по порядку, первое совпадение побеждает:
//
//	rate_limit → token_limit → network → timeout → validation →
//	backend_error → tool_error → unknown
//
// Каждая категория задаёт восстановимость, базовую задержку, лимит повторов
// и необязательное fallback-действие. Ошибки validation не повторяются.
//
// Backoff: min(base × 2^attempt, cap) с джиттером ±10–30%.
//
// ProcessBatch прогоняет элементы последовательно через Retry и собирает
// результаты и ошибки. По умолчанию ошибка элемента не останавливает батч.
package diagnostics

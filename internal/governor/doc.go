// Package governor ограничивает нагрузку на upstream-сервис генерации текста.
//
// Governor объединяет:
//   - token bucket (golang.org/x/time/rate) — средняя частота вызовов
//   - семафор (golang.org/x/sync/semaphore) — потолок одновременных вызовов
//   - контроллер размера батча — текущий batchSize, который уменьшается
//     по fallback-действию reduce_batch_size
package governor

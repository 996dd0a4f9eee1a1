// Package cache — кэш классификаций с TTL.
//
// Структура:
//   - store.go          — интерфейс Store (get/set/delete/sweep по ключу)
//   - memory.go         — in-memory хранилище с ленивым истечением и sweep
//   - redis.go          — хранилище в Redis для нескольких реплик
//   - classification.go — двухуровневый поиск: точный ключ, затем ключ поставщика
//
// Записи перезаписываются целиком (last-write-wins), поэтому конкурентные
// операции над элементами могут писать в кэш без координации.
package cache

// Package repo — слой хранения в Postgres (pgx).
//
//   - CheckpointRepo    — снимки SessionState в JSONB с оптимистичной версией
//   - TaxonomyRepo      — справочник UNSPSC с полнотекстовым поиском (taxonomy.Searcher)
//   - MemoryCheckpoints — те же контракты чекпоинтов в памяти процесса
//   - Leader            — лидерство планировщика через advisory lock
//
// Отсутствие записи возвращается как ErrNotFound.
package repo

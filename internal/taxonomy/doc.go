// Package taxonomy — поиск по справочнику кодов UNSPSC.
//
// Searcher — контракт коллаборатора: Search(ctx, query, limit).
// Числовой запрос ищет точный код, текстовый — по словам названия
// и ключевым словам.
//
// MemoryIndex загружается из YAML (встроенный seed.yaml или файл).
// Postgres-реализация — repo.TaxonomyRepo.
package taxonomy

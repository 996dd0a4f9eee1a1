// Package classify — операция классификации одной записи.
//
// Порядок:
//  1. кэш, точный ключ (поставщик + усечённое описание)
//  2. кэш, ключ поставщика (уверенность × 0.9)
//  3. поиск кандидатов в справочнике и вызов модели с повторами
//  4. запись результата на оба уровня кэша
package classify

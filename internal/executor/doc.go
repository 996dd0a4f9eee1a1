// Package executor прогоняет коллекцию элементов через операцию
// с ограничением параллелизма на уровне чанков.
//
// Схема:
//
//	items → чанки по BatchSize → волны по MaxConcurrency чанков
//
// Внутри чанка все элементы выполняются одновременно (fan-out/fan-in),
// волна N+1 стартует только после завершения волны N и паузы
// InterBatchDelay. Ошибка элемента не прерывает соседей.
//
// Отмена контекста останавливает запуск новых волн. Уже запущенные
// элементы дорабатывают, их результаты сохраняются, незапущенные
// помечаются Skipped.
package executor

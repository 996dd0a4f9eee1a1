// Package engine содержит маршрутизацию конвейера.
//
// Router по снимку SessionState решает, какая стадия выполняется
// следующей. Решение зависит только от состояния сессии: записи без
// классификации уходят в classifying, классификации без оценки в qa,
// и так далее до respond. Предикаты (Unclassified, MissingQA,
// NeedsReview, EnrichmentPending, AnalysisPending) используются
// и самими стадиями для выбора элементов.
package engine

package domain

import "time"

// Редьюсеры полей SessionState.
//
// Каждое поле сливается по своему правилу:
//   - InputRecords, HITLQueue, Enrichments — upsert по ID
//   - Classifications, QAResults — вставка один раз (существующее значение не заменяется)
//   - HITLDecisions, Errors, Transitions — append
//   - Stage, Analysis — замена скаляра
//
// Функции чистые: принимают текущее значение поля и новые элементы,
// возвращают новое значение.

// MergeRecords сливает записи с upsert по ID, сохраняя порядок первой подачи.
func MergeRecords(existing, incoming []InputRecord) []InputRecord {
	index := make(map[string]int, len(existing))
	out := make([]InputRecord, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for i, r := range out {
		index[r.ID] = i
	}
	for _, r := range incoming {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// MergeClassifications добавляет классификации для записей, у которых их ещё нет.
// Повторная классификация той же записи игнорируется.
func MergeClassifications(existing, incoming []Classification) []Classification {
	seen := make(map[string]bool, len(existing))
	out := make([]Classification, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, c := range existing {
		seen[c.RecordID] = true
	}
	for _, c := range incoming {
		if seen[c.RecordID] {
			continue
		}
		seen[c.RecordID] = true
		out = append(out, c)
	}
	return out
}

// MergeQAResults добавляет результаты оценки, не пересчитывая существующие.
func MergeQAResults(existing, incoming []QAResult) []QAResult {
	seen := make(map[string]bool, len(existing))
	out := make([]QAResult, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, r := range existing {
		seen[r.ClassificationID] = true
	}
	for _, r := range incoming {
		if seen[r.ClassificationID] {
			continue
		}
		seen[r.ClassificationID] = true
		out = append(out, r)
	}
	return out
}

// UpsertHITLItems сливает элементы очереди с upsert по ID.
func UpsertHITLItems(existing, incoming []HITLItem) []HITLItem {
	index := make(map[string]int, len(existing))
	out := make([]HITLItem, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for i, item := range out {
		index[item.ID] = i
	}
	for _, item := range incoming {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// MergeEnrichments сливает обогащения с upsert по RecordID.
func MergeEnrichments(existing, incoming []Enrichment) []Enrichment {
	index := make(map[string]int, len(existing))
	out := make([]Enrichment, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for i, e := range out {
		index[e.RecordID] = i
	}
	for _, e := range incoming {
		if i, ok := index[e.RecordID]; ok {
			out[i] = e
			continue
		}
		index[e.RecordID] = len(out)
		out = append(out, e)
	}
	return out
}

// AppendDecisions дописывает решения в журнал.
func AppendDecisions(existing, incoming []HITLDecision) []HITLDecision {
	return append(existing, incoming...)
}

// AppendErrors дописывает ошибки в журнал.
func AppendErrors(existing, incoming []ErrorRecord) []ErrorRecord {
	return append(existing, incoming...)
}

// Update — набор выходов стадии, сливаемых в состояние одной операцией.
type Update struct {
	Records         []InputRecord
	Classifications []Classification
	QAResults       []QAResult
	HITLItems       []HITLItem
	Decisions       []HITLDecision
	Enrichments     []Enrichment
	Errors          []ErrorRecord
	Analysis        *AnalysisReport
}

// Apply сливает выходы стадии в состояние через редьюсеры полей.
func (s *SessionState) Apply(u Update) {
	if len(u.Records) > 0 {
		s.InputRecords = MergeRecords(s.InputRecords, u.Records)
	}
	if len(u.Classifications) > 0 {
		s.Classifications = MergeClassifications(s.Classifications, u.Classifications)
	}
	if len(u.QAResults) > 0 {
		s.QAResults = MergeQAResults(s.QAResults, u.QAResults)
	}
	if len(u.HITLItems) > 0 {
		s.HITLQueue = UpsertHITLItems(s.HITLQueue, u.HITLItems)
	}
	if len(u.Decisions) > 0 {
		s.HITLDecisions = AppendDecisions(s.HITLDecisions, u.Decisions)
	}
	if len(u.Enrichments) > 0 {
		s.Enrichments = MergeEnrichments(s.Enrichments, u.Enrichments)
	}
	if len(u.Errors) > 0 {
		s.Errors = AppendErrors(s.Errors, u.Errors)
	}
	if u.Analysis != nil {
		s.Analysis = u.Analysis
	}
	s.UpdatedAt = time.Now()
}

// SetStage заменяет стадию и пишет переход в журнал.
// Возвращает true, если стадия изменилась.
func (s *SessionState) SetStage(to Stage) bool {
	if s.Stage == to {
		return false
	}
	s.Transitions = append(s.Transitions, StageTransition{From: s.Stage, To: to, At: time.Now()})
	s.Stage = to
	return true
}

// Path возвращает последовательность стадий из журнала начиная с индекса from.
// Первым элементом идёт исходная стадия перехода from.
func (s *SessionState) Path(from int) []Stage {
	if from < 0 || from >= len(s.Transitions) {
		return nil
	}
	path := []Stage{s.Transitions[from].From}
	for _, t := range s.Transitions[from:] {
		path = append(path, t.To)
	}
	return path
}

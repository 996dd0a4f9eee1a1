package domain

import (
	"slices"
	"time"
)

// SessionState — состояние одной сессии обработки.
//
// SessionState создаётся при первой подаче записей и дальше меняется
// только через редьюсеры полей (см. reducers.go), которые применяет
// единственный оркестрирующий путь на границах стадий. Конкурентные
// операции над элементами возвращают обычные результаты и состояние
// не трогают, поэтому блокировки на SessionState не нужны.
//
// Явно не удаляется — истекает вместе с чекпоинтом по политике хранения.
type SessionState struct {
	SessionID string `json:"session_id"`

	// Intent — текст последнего запроса пользователя.
	Intent string `json:"intent,omitempty"`

	// EnrichmentRequested — пользователь запросил обогащение.
	EnrichmentRequested bool `json:"enrichment_requested,omitempty"`

	InputRecords    []InputRecord    `json:"input_records"`
	Classifications []Classification `json:"classifications"`
	QAResults       []QAResult       `json:"qa_results"`
	HITLQueue       []HITLItem       `json:"hitl_queue"`
	HITLDecisions   []HITLDecision   `json:"hitl_decisions"`
	Enrichments     []Enrichment     `json:"enrichments,omitempty"`
	Analysis        *AnalysisReport  `json:"analysis,omitempty"`

	// Stage — текущая стадия (replace-scalar).
	Stage Stage `json:"stage"`

	// Transitions — журнал переходов между стадиями (append-only).
	Transitions []StageTransition `json:"transitions,omitempty"`

	// AwaitingDecision — маркер паузы: ход завершён, ждём решения человека.
	AwaitingDecision bool `json:"awaiting_decision"`

	// Errors — ошибки отдельных элементов (append-only).
	Errors []ErrorRecord `json:"errors"`

	// Fatal — ошибка уровня стадии, переводящая сессию в StageError.
	Fatal *ErrorRecord `json:"fatal,omitempty"`

	// Response — сводка последнего завершённого хода.
	Response string `json:"response,omitempty"`

	// Version увеличивается при каждом сохранении чекпоинта.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageTransition — запись журнала переходов.
type StageTransition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// NewSessionState создаёт пустое состояние сессии.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now()
	return &SessionState{
		SessionID: sessionID,
		Stage:     StageIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Record возвращает запись по ID.
func (s *SessionState) Record(id string) (*InputRecord, bool) {
	for i := range s.InputRecords {
		if s.InputRecords[i].ID == id {
			return &s.InputRecords[i], true
		}
	}
	return nil, false
}

// Classification возвращает классификацию записи.
func (s *SessionState) Classification(recordID string) (*Classification, bool) {
	for i := range s.Classifications {
		if s.Classifications[i].RecordID == recordID {
			return &s.Classifications[i], true
		}
	}
	return nil, false
}

// QAResult возвращает результат оценки классификации.
func (s *SessionState) QAResult(classificationID string) (*QAResult, bool) {
	for i := range s.QAResults {
		if s.QAResults[i].ClassificationID == classificationID {
			return &s.QAResults[i], true
		}
	}
	return nil, false
}

// HITLItem возвращает элемент очереди по ID.
func (s *SessionState) HITLItem(itemID string) (*HITLItem, bool) {
	for i := range s.HITLQueue {
		if s.HITLQueue[i].ID == itemID {
			return &s.HITLQueue[i], true
		}
	}
	return nil, false
}

// HITLItemForRecord возвращает элемент очереди, созданный для записи.
func (s *SessionState) HITLItemForRecord(recordID string) (*HITLItem, bool) {
	for i := range s.HITLQueue {
		if s.HITLQueue[i].RecordID == recordID {
			return &s.HITLQueue[i], true
		}
	}
	return nil, false
}

// Decision возвращает решение по элементу очереди.
func (s *SessionState) Decision(itemID string) (*HITLDecision, bool) {
	for i := range s.HITLDecisions {
		if s.HITLDecisions[i].ItemID == itemID {
			return &s.HITLDecisions[i], true
		}
	}
	return nil, false
}

// Enrichment возвращает обогащение записи.
func (s *SessionState) Enrichment(recordID string) (*Enrichment, bool) {
	for i := range s.Enrichments {
		if s.Enrichments[i].RecordID == recordID {
			return &s.Enrichments[i], true
		}
	}
	return nil, false
}

// HasError проверяет, зафиксирована ли ошибка стадии для записи.
func (s *SessionState) HasError(stage Stage, recordID string) bool {
	for i := range s.Errors {
		if s.Errors[i].Stage == stage && s.Errors[i].RecordID == recordID {
			return true
		}
	}
	return false
}

// PendingHITL возвращает число элементов очереди без решения.
func (s *SessionState) PendingHITL() int {
	n := 0
	for i := range s.HITLQueue {
		if s.HITLQueue[i].IsPending() {
			n++
		}
	}
	return n
}

// IsRejected возвращает true, если человек отклонил классификацию записи.
// Такая запись считается обработанной, но дальше идёт как неклассифицированная.
func (s *SessionState) IsRejected(recordID string) bool {
	item, ok := s.HITLItemForRecord(recordID)
	if !ok {
		return false
	}
	d, ok := s.Decision(item.ID)
	return ok && d.Action == ActionReject
}

// FinalClassification возвращает итоговую классификацию записи.
//
// Итоговой считается классификация, одобренная рубрикой без ручной
// проверки, либо одобренная/исправленная человеком. Для modify код и
// название берутся из решения. Отклонённые, эскалированные и ещё
// не решённые записи итоговой классификации не имеют.
func (s *SessionState) FinalClassification(recordID string) (Classification, bool) {
	c, ok := s.Classification(recordID)
	if !ok {
		return Classification{}, false
	}
	qa, ok := s.QAResult(recordID)
	if !ok {
		return Classification{}, false
	}

	item, hasItem := s.HITLItemForRecord(recordID)
	if !hasItem {
		if qa.Verdict == VerdictApproved && c.Confidence >= 50 {
			return *c, true
		}
		return Classification{}, false
	}

	d, ok := s.Decision(item.ID)
	if !ok {
		return Classification{}, false
	}
	switch d.Action {
	case ActionApprove:
		return *c, true
	case ActionModify:
		final := *c
		final.Code = d.Code
		final.Title = d.Title
		return final, true
	default:
		return Classification{}, false
	}
}

// Clone возвращает копию состояния, безопасную для передачи наружу.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.InputRecords = slices.Clone(s.InputRecords)
	c.Classifications = slices.Clone(s.Classifications)
	c.QAResults = make([]QAResult, len(s.QAResults))
	for i, qa := range s.QAResults {
		qa.Dimensions = slices.Clone(qa.Dimensions)
		qa.Issues = slices.Clone(qa.Issues)
		c.QAResults[i] = qa
	}
	c.HITLQueue = slices.Clone(s.HITLQueue)
	c.HITLDecisions = slices.Clone(s.HITLDecisions)
	c.Enrichments = slices.Clone(s.Enrichments)
	c.Transitions = slices.Clone(s.Transitions)
	c.Errors = slices.Clone(s.Errors)
	if s.Analysis != nil {
		a := *s.Analysis
		c.Analysis = &a
	}
	if s.Fatal != nil {
		f := *s.Fatal
		c.Fatal = &f
	}
	return &c
}

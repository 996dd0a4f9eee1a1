package domain

// Stage — стадия конвейера обработки сессии.
//
// Жизненный цикл одного хода:
//
//	IDLE → CLASSIFYING → QA → HITL → ENRICHING → ANALYZING → RESPOND
//	                                                       ↘ COMPLETE (нет записей)
//	          (любая стадия) → ERROR (фатальная ошибка стадии)
//
// RESPOND — терминальная стадия для текущего хода: сессия либо
// полностью обработана, либо ждёт решения человека.
type Stage string

const (
	// StageIdle — начальная стадия хода, роутер ещё не принимал решений.
	StageIdle Stage = "idle"

	// StageClassifying — классификация записей.
	StageClassifying Stage = "classifying"

	// StageQA — оценка качества классификаций по рубрике.
	StageQA Stage = "qa"

	// StageHITL — постановка и ожидание решений человека.
	StageHITL Stage = "hitl"

	// StageEnriching — обогащение финальных классификаций.
	StageEnriching Stage = "enriching"

	// StageAnalyzing — аналитический отчёт по батчу.
	StageAnalyzing Stage = "analyzing"

	// StageRespond — ответ вызывающему, конец хода.
	StageRespond Stage = "respond"

	// StageComplete — тривиальное завершение (в сессии нет записей).
	StageComplete Stage = "complete"

	// StageError — фатальная ошибка стадии.
	StageError Stage = "error"
)

// IsTerminal возвращает true, если на этой стадии ход завершается.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageRespond, StageComplete, StageError:
		return true
	default:
		return false
	}
}

// Verdict — вердикт рубрики качества.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictFlagged  Verdict = "flagged"
	VerdictRejected Verdict = "rejected"
)

// NeedsReview возвращает true для вердиктов, требующих решения человека.
func (v Verdict) NeedsReview() bool {
	return v == VerdictFlagged || v == VerdictRejected
}

// Rank упорядочивает вердикты от худшего к лучшему: rejected < flagged < approved.
func (v Verdict) Rank() int {
	switch v {
	case VerdictApproved:
		return 2
	case VerdictFlagged:
		return 1
	default:
		return 0
	}
}

// Priority — приоритет элемента очереди HITL.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank возвращает числовой ранг приоритета (больше — срочнее).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// HITLStatus — статус элемента очереди HITL.
//
// Жизненный цикл:
//
//	PENDING → DECIDED (один необратимый переход)
type HITLStatus string

const (
	HITLStatusPending HITLStatus = "pending"
	HITLStatusDecided HITLStatus = "decided"
)

// DecisionAction — действие, выбранное человеком.
type DecisionAction string

const (
	// ActionApprove — принять классификацию как есть.
	ActionApprove DecisionAction = "approve"

	// ActionModify — заменить код и название классификации.
	ActionModify DecisionAction = "modify"

	// ActionReject — отбросить классификацию без замены.
	ActionReject DecisionAction = "reject"

	// ActionEscalate — передать на следующий уровень рассмотрения.
	ActionEscalate DecisionAction = "escalate"
)

// Valid проверяет, что действие входит в допустимый набор.
func (a DecisionAction) Valid() bool {
	switch a {
	case ActionApprove, ActionModify, ActionReject, ActionEscalate:
		return true
	default:
		return false
	}
}

// ClassificationSource — откуда получена классификация.
type ClassificationSource string

const (
	SourceModel       ClassificationSource = "model"
	SourceCacheExact  ClassificationSource = "cache_exact"
	SourceCacheVendor ClassificationSource = "cache_vendor"
)

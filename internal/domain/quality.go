package domain

import "time"

// DimensionScore — оценка по одному измерению рубрики.
type DimensionScore struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Rationale string  `json:"rationale,omitempty"`
}

// Severity — серьёзность замечания рубрики.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Issue — замечание по измерению с оценкой ниже порога.
type Issue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Типы замечаний, влияющие на приоритет HITL.
const (
	IssueAmountAnomaly = "amount_anomaly"
	IssueVendorUnknown = "vendor_unknown"
)

// QAResult — результат оценки классификации по рубрике.
//
// Один на классификацию, создаётся один раз и не пересчитывается.
type QAResult struct {
	// ClassificationID — ID классификации (совпадает с RecordID записи).
	ClassificationID string `json:"classification_id"`

	// Dimensions — шесть оценок рубрики, веса в сумме дают 1.0.
	Dimensions []DimensionScore `json:"dimensions"`

	// WeightedScore — Σ(score × weight).
	WeightedScore float64 `json:"weighted_score"`

	Verdict Verdict `json:"verdict"`
	Issues  []Issue `json:"issues,omitempty"`

	// Degraded — ответ модели был неполным или не разобран,
	// часть измерений получила значение по умолчанию.
	Degraded bool `json:"degraded,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// HasIssue проверяет наличие замечания указанного типа.
func (r *QAResult) HasIssue(issueType string) bool {
	for _, issue := range r.Issues {
		if issue.Type == issueType {
			return true
		}
	}
	return false
}

// HITLItem — элемент очереди ручной проверки.
type HITLItem struct {
	ID       string     `json:"id"`
	RecordID string     `json:"record_id"`
	Priority Priority   `json:"priority"`
	Reason   string     `json:"reason"`
	Status   HITLStatus `json:"status"`

	// Verdict и Confidence — снимок на момент создания элемента.
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`

	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// IsPending возвращает true, пока решение не принято.
func (i *HITLItem) IsPending() bool {
	return i.Status == HITLStatusPending
}

// HITLDecision — решение человека по элементу очереди. Хранится append-only.
type HITLDecision struct {
	ItemID string         `json:"item_id" validate:"required"`
	Action DecisionAction `json:"action" validate:"required,oneof=approve modify reject escalate"`

	// Code и Title — замена для действия modify.
	Code  string `json:"code,omitempty" validate:"required_if=Action modify"`
	Title string `json:"title,omitempty" validate:"required_if=Action modify"`

	Comment   string    `json:"comment,omitempty"`
	Reviewer  string    `json:"reviewer,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// ErrorRecord — зафиксированная ошибка обработки.
type ErrorRecord struct {
	Stage    Stage  `json:"stage"`
	RecordID string `json:"record_id,omitempty"`

	// Code — категория ошибки (rate_limit, validation, ...).
	Code    string `json:"code"`
	Message string `json:"message"`

	Recoverable    bool   `json:"recoverable"`
	RetryCount     int    `json:"retry_count"`
	MaxRetries     int    `json:"max_retries"`
	FallbackAction string `json:"fallback_action,omitempty"`
	Remediation    string `json:"remediation,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Procura/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Session DTOs

// SubmitRecordsRequest — запрос на подачу записей.
type SubmitRecordsRequest struct {
	Records []domain.InputRecord `json:"records" validate:"dive"`

	// Intent — текст запроса пользователя (обогащение, аналитика).
	Intent string `json:"intent,omitempty"`
}

// DecisionRequest — решение по элементу проверки.
type DecisionRequest struct {
	ItemID   string                `json:"item_id" validate:"required"`
	Action   domain.DecisionAction `json:"action" validate:"required,oneof=approve modify reject escalate"`
	Code     string                `json:"code,omitempty" validate:"required_if=Action modify"`
	Title    string                `json:"title,omitempty" validate:"required_if=Action modify"`
	Comment  string                `json:"comment,omitempty"`
	Reviewer string                `json:"reviewer,omitempty"`
}

// ToDomain конвертирует DecisionRequest в domain.HITLDecision.
func (r DecisionRequest) ToDomain() domain.HITLDecision {
	return domain.HITLDecision{
		ItemID:   r.ItemID,
		Action:   r.Action,
		Code:     r.Code,
		Title:    r.Title,
		Comment:  r.Comment,
		Reviewer: r.Reviewer,
	}
}

// SessionResponse — ответ с состоянием сессии.
type SessionResponse struct {
	SessionID        string       `json:"session_id"`
	Stage            domain.Stage `json:"stage"`
	AwaitingDecision bool         `json:"awaiting_decision"`
	Response         string       `json:"response,omitempty"`

	Records       int `json:"records"`
	PendingReview int `json:"pending_review"`

	Classifications []domain.Classification `json:"classifications"`
	QAResults       []domain.QAResult       `json:"qa_results"`
	HITLQueue       []domain.HITLItem       `json:"hitl_queue"`
	Enrichments     []domain.Enrichment     `json:"enrichments,omitempty"`
	Analysis        *domain.AnalysisReport  `json:"analysis,omitempty"`
	Errors          []domain.ErrorRecord    `json:"errors"`
	Fatal           *domain.ErrorRecord     `json:"fatal,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionFromDomain конвертирует domain.SessionState в SessionResponse.
func SessionFromDomain(s *domain.SessionState) SessionResponse {
	return SessionResponse{
		SessionID:        s.SessionID,
		Stage:            s.Stage,
		AwaitingDecision: s.AwaitingDecision,
		Response:         s.Response,
		Records:          len(s.InputRecords),
		PendingReview:    s.PendingHITL(),
		Classifications:  s.Classifications,
		QAResults:        s.QAResults,
		HITLQueue:        s.HITLQueue,
		Enrichments:      s.Enrichments,
		Analysis:         s.Analysis,
		Errors:           s.Errors,
		Fatal:            s.Fatal,
		Version:          s.Version,
		UpdatedAt:        s.UpdatedAt,
	}
}

// DecisionAccepted — ответ на асинхронное решение.
type DecisionAccepted struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
	Queued    bool   `json:"queued"`
}

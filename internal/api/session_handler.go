package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Procura/internal/hitl"
)

// maxBodyBytes — предел размера тела запроса.
const maxBodyBytes = 10 << 20

// SubmitRecords подаёт записи в сессию и проводит ход.
// POST /api/v1/sessions/{id}/records
func (h *Handler) SubmitRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req SubmitRecordsRequest
	if !decode(w, r, &req) {
		return
	}

	s, err := h.sessions.Submit(r.Context(), sessionID, req.Records, req.Intent)
	if HandleSessionError(w, h.logger, err) {
		return
	}

	Success(w, SessionFromDomain(s))
}

// SubmitDecision применяет решение по элементу проверки.
// POST /api/v1/sessions/{id}/decisions?async=true
//
// В асинхронном режиме решение проверяется против последнего чекпоинта
// и уходит в очередь hitl.decisions, ответ — 202.
func (h *Handler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req DecisionRequest
	if !decode(w, r, &req) {
		return
	}
	decision := req.ToDomain()

	if r.URL.Query().Get("async") != "true" {
		s, err := h.sessions.Resume(r.Context(), sessionID, decision)
		if HandleSessionError(w, h.logger, err) {
			return
		}
		Success(w, SessionFromDomain(s))
		return
	}

	if h.publisher == nil {
		Unavailable(w, "decision queue is not configured")
		return
	}

	s, err := h.sessions.GetState(r.Context(), sessionID)
	if HandleSessionError(w, h.logger, err) {
		return
	}
	if HandleSessionError(w, h.logger, hitl.ValidateDecision(s, decision)) {
		return
	}

	if err := h.publisher.PublishDecision(r.Context(), sessionID, decision); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: DecisionAccepted{
		SessionID: sessionID,
		ItemID:    decision.ItemID,
		Queued:    true,
	}})
}

// GetSession возвращает состояние сессии.
// GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.GetState(r.Context(), r.PathValue("id"))
	if HandleSessionError(w, h.logger, err) {
		return
	}

	Success(w, SessionFromDomain(s))
}

// ListHITL возвращает нерешённые элементы проверки по приоритету.
// GET /api/v1/sessions/{id}/hitl
func (h *Handler) ListHITL(w http.ResponseWriter, r *http.Request) {
	items, err := h.sessions.Queue(r.Context(), r.PathValue("id"))
	if HandleSessionError(w, h.logger, err) {
		return
	}

	List(w, items, len(items))
}

// decode читает и валидирует тело запроса. При ошибке ответ уже отправлен.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		BadRequest(w, err.Error())
		return false
	}
	return true
}

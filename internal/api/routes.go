package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(),
		Logging(h.logger),
	)

	// Sessions
	mux.Handle("POST /api/v1/sessions/{id}/records", chain(http.HandlerFunc(h.SubmitRecords)))
	mux.Handle("POST /api/v1/sessions/{id}/decisions", chain(http.HandlerFunc(h.SubmitDecision)))
	mux.Handle("GET /api/v1/sessions/{id}", chain(http.HandlerFunc(h.GetSession)))
	mux.Handle("GET /api/v1/sessions/{id}/hitl", chain(http.HandlerFunc(h.ListHITL)))
}

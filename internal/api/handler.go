package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Procura/internal/domain"
)

// Sessions — операции над сессиями, которые обслуживает API.
// Реализуется orchestrator.Orchestrator.
type Sessions interface {
	Submit(ctx context.Context, sessionID string, records []domain.InputRecord, intent string) (*domain.SessionState, error)
	Resume(ctx context.Context, sessionID string, decision domain.HITLDecision) (*domain.SessionState, error)
	GetState(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Queue(ctx context.Context, sessionID string) ([]domain.HITLItem, error)
}

// DecisionPublisher ставит решение в очередь для асинхронного применения.
// Реализуется mq.Publisher.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, sessionID string, d domain.HITLDecision) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	sessions  Sessions
	publisher DecisionPublisher
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Sessions Sessions

	// Publisher — очередь решений; nil — решения только синхронно.
	Publisher DecisionPublisher

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:  cfg.Sessions,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

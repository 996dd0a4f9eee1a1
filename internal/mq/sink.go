package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Procura/internal/events"
)

const defaultPublishTimeout = 5 * time.Second

// EventPublisher — events.Notifier, публикующий события в procura.events.
// Ошибки публикации логируются и не возвращаются.
//
// Вызовы синхронны, поэтому EventPublisher подключается к оркестратору
// через events.Dispatcher.
type EventPublisher struct {
	publisher *Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewEventPublisher создаёт EventPublisher. timeout <= 0 — 5s на публикацию.
func NewEventPublisher(p *Publisher, timeout time.Duration, logger *slog.Logger) *EventPublisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{publisher: p, timeout: timeout, logger: logger}
}

func (s *EventPublisher) OnProgress(e events.Progress) {
	s.publish(string(MessageTypeProgress), e.SessionID, func(ctx context.Context) error {
		return s.publisher.PublishProgress(ctx, e)
	})
}

func (s *EventPublisher) OnStageChange(e events.StageChange) {
	s.publish(string(MessageTypeStageChanged), e.SessionID, func(ctx context.Context) error {
		return s.publisher.PublishStageChanged(ctx, e)
	})
}

func (s *EventPublisher) OnHITLCreated(e events.HITLCreated) {
	s.publish(string(MessageTypeHITLCreated), e.SessionID, func(ctx context.Context) error {
		return s.publisher.PublishHITLCreated(ctx, e)
	})
}

func (s *EventPublisher) publish(kind, sessionID string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.logger.Warn("failed to publish event",
			"type", kind,
			"session_id", sessionID,
			"error", err,
		)
	}
}

package orchestrator

import (
	"context"
	"errors"

	"github.com/shaiso/Procura/internal/hitl"
	"github.com/shaiso/Procura/internal/mq"
)

// ApplyDecision применяет решение, пришедшее из очереди hitl.decisions.
//
// Повторная доставка уже применённого решения подтверждается без ошибки.
// Занятая сессия возвращает сообщение в очередь, остальные отказы
// отправляются в DLQ как mq.Permanent.
func (o *Orchestrator) ApplyDecision(ctx context.Context, p mq.DecisionPayload) error {
	_, err := o.Resume(ctx, p.SessionID, p.Decision)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hitl.ErrItemAlreadyDecided):
		o.logger.Info("decision already applied",
			"session_id", p.SessionID,
			"item_id", p.Decision.ItemID,
		)
		return nil
	case errors.Is(err, ErrSessionBusy):
		return err
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionFailed),
		errors.Is(err, hitl.ErrItemNotFound),
		errors.Is(err, hitl.ErrInvalidDecision):
		return mq.Permanent(err)
	default:
		return err
	}
}

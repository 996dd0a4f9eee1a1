package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/events"
	"github.com/shaiso/Procura/internal/hitl"
	"github.com/shaiso/Procura/internal/telemetry"
)

// run — цикл хода: роутер → стадия → слияние → чекпоинт.
//
// Отмена контекста прерывает ход после текущей стадии: уже полученные
// результаты сохраняются в чекпоинт, следующий ход продолжит с них.
func (o *Orchestrator) run(ctx context.Context, s *domain.SessionState) (*domain.SessionState, error) {
	logger := telemetry.WithSessionID(o.logger, s.SessionID)

	for step := 0; ; step++ {
		if step >= o.maxSteps {
			err := fmt.Errorf("%w: %d steps, last stage %s", ErrStageLoop, step, s.Stage)
			o.fail(s, s.Stage, err)
			o.finish(s)
			if saveErr := o.save(ctx, s); saveErr != nil {
				return nil, saveErr
			}
			return s.Clone(), err
		}

		next := o.router.Next(s)
		o.transition(s, next)

		if next.IsTerminal() {
			o.finish(s)
			if err := o.save(ctx, s); err != nil {
				return nil, err
			}
			logger.Info("turn finished",
				"stage", s.Stage,
				"awaiting_decision", s.AwaitingDecision,
				"errors", len(s.Errors),
			)
			return s.Clone(), nil
		}

		err := o.runStage(ctx, s, next)
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("turn interrupted", "stage", next, "error", ctxErr)
			saveErr := o.save(context.WithoutCancel(ctx), s)
			return s.Clone(), errors.Join(ctxErr, saveErr)
		}
		if err != nil {
			logger.Error("stage failed", "stage", next, "error", err)
			o.fail(s, next, err)
		}

		if err := o.save(ctx, s); err != nil {
			return nil, err
		}
	}
}

// runStage выполняет обработчик стадии.
func (o *Orchestrator) runStage(ctx context.Context, s *domain.SessionState, stage domain.Stage) error {
	switch stage {
	case domain.StageClassifying:
		return o.classifyStage(ctx, s)
	case domain.StageQA:
		return o.qaStage(ctx, s)
	case domain.StageHITL:
		return o.hitlStage(s)
	case domain.StageEnriching:
		return o.enrichStage(ctx, s)
	case domain.StageAnalyzing:
		return o.analyzeStage(ctx, s)
	default:
		return fmt.Errorf("no handler for stage %s", stage)
	}
}

// transition меняет стадию и уведомляет подписчиков.
func (o *Orchestrator) transition(s *domain.SessionState, to domain.Stage) {
	from := s.Stage
	if !s.SetStage(to) {
		return
	}
	o.metrics.StageTransition(string(from), string(to))
	o.notifier.OnStageChange(events.StageChange{
		SessionID: s.SessionID,
		From:      from,
		To:        to,
		At:        o.now(),
	})
	o.logger.Debug("stage transition",
		"session_id", s.SessionID,
		"from", from,
		"to", to,
	)
}

// fail фиксирует ошибку уровня стадии и переводит сессию в error.
func (o *Orchestrator) fail(s *domain.SessionState, stage domain.Stage, err error) {
	rec := errorRecord(stage, "", err)
	s.Fatal = &rec
	s.Apply(domain.Update{Errors: []domain.ErrorRecord{rec}})
	o.transition(s, domain.StageError)
}

// finish завершает ход: сводка и маркер ожидания решения.
func (o *Orchestrator) finish(s *domain.SessionState) {
	pending := hitl.PendingCount(s)
	s.AwaitingDecision = pending > 0
	s.Response = Summary(s)
	o.metrics.SetHITLPending(pending)
}

func (o *Orchestrator) save(ctx context.Context, s *domain.SessionState) error {
	if err := o.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", s.SessionID, err)
	}
	return nil
}

// errorRecord строит ErrorRecord. Для ошибок Retry берутся диагноз
// и число повторов, остальные классифицируются заново.
func errorRecord(stage domain.Stage, recordID string, err error) domain.ErrorRecord {
	var de *diagnostics.Error
	if errors.As(err, &de) {
		return de.Diagnosis.Record(stage, recordID, de.Attempts-1)
	}
	return diagnostics.Classify(err).Record(stage, recordID, 0)
}

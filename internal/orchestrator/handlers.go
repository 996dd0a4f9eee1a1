package orchestrator

import (
	"context"
	"errors"

	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/engine"
	"github.com/shaiso/Procura/internal/events"
	"github.com/shaiso/Procura/internal/executor"
	"github.com/shaiso/Procura/internal/hitl"
)

// pair — запись с её итоговой классификацией.
type pair struct {
	rec domain.InputRecord
	cls domain.Classification
}

// classifyStage классифицирует записи без классификации.
func (o *Orchestrator) classifyStage(ctx context.Context, s *domain.SessionState) error {
	recs := records(s, engine.Unclassified(s))

	out, err := executor.RunBatch(ctx, recs, o.classifier.Classify,
		batchConfig[domain.Classification](o, s, domain.StageClassifying, func(i int) string { return recs[i].ID }))

	var u domain.Update
	for _, r := range out.Results {
		switch {
		case r.Skipped:
		case r.Err != nil:
			if itemInterrupted(r.Err) {
				continue
			}
			u.Errors = append(u.Errors, errorRecord(domain.StageClassifying, recs[r.Index].ID, r.Err))
			o.metrics.ItemProcessed(string(domain.StageClassifying), "error")
		default:
			u.Classifications = append(u.Classifications, r.Value)
			o.metrics.ItemProcessed(string(domain.StageClassifying), "ok")
		}
	}
	s.Apply(u)

	o.logger.Info("classification finished",
		"session_id", s.SessionID,
		"succeeded", out.Succeeded,
		"failed", out.Failed,
		"skipped", out.Skipped,
	)
	return err
}

// qaResult — оценка вместе с числом повторов.
type qaResult struct {
	qa      domain.QAResult
	retries int
}

// qaStage оценивает классификации без QA-результата.
func (o *Orchestrator) qaStage(ctx context.Context, s *domain.SessionState) error {
	var pairs []pair
	for _, id := range engine.MissingQA(s) {
		rec, ok := s.Record(id)
		if !ok {
			continue
		}
		cls, _ := s.Classification(id)
		pairs = append(pairs, pair{rec: *rec, cls: *cls})
	}

	evaluate := func(ctx context.Context, p pair) (qaResult, error) {
		qa, retries, err := o.evaluator.Evaluate(ctx, p.rec, p.cls)
		return qaResult{qa: qa, retries: retries}, err
	}
	out, err := executor.RunBatch(ctx, pairs, evaluate,
		batchConfig[qaResult](o, s, domain.StageQA, func(i int) string { return pairs[i].rec.ID }))

	var u domain.Update
	for _, r := range out.Results {
		switch {
		case r.Skipped:
		case r.Err != nil:
			if itemInterrupted(r.Err) {
				continue
			}
			u.Errors = append(u.Errors, errorRecord(domain.StageQA, pairs[r.Index].rec.ID, r.Err))
			o.metrics.ItemProcessed(string(domain.StageQA), "error")
		default:
			u.QAResults = append(u.QAResults, r.Value.qa)
			o.metrics.ItemProcessed(string(domain.StageQA), "ok")
		}
	}
	s.Apply(u)

	o.logger.Info("qa finished",
		"session_id", s.SessionID,
		"succeeded", out.Succeeded,
		"failed", out.Failed,
		"skipped", out.Skipped,
	)
	return err
}

// hitlStage ставит в очередь записи, которым нужна проверка.
func (o *Orchestrator) hitlStage(s *domain.SessionState) error {
	items := hitl.Collect(s, o.now())
	if len(items) == 0 {
		return nil
	}
	s.Apply(domain.Update{HITLItems: items})

	for _, item := range items {
		o.metrics.HITLItemCreated(string(item.Priority))
		o.notifier.OnHITLCreated(events.HITLCreated{SessionID: s.SessionID, Item: item})
	}
	o.metrics.SetHITLPending(hitl.PendingCount(s))

	o.logger.Info("hitl items created",
		"session_id", s.SessionID,
		"created", len(items),
		"pending", hitl.PendingCount(s),
	)
	return nil
}

// enrichStage обогащает записи с итоговой классификацией.
// Элементы выполняются последовательно с повтором по политике категории.
func (o *Orchestrator) enrichStage(ctx context.Context, s *domain.SessionState) error {
	var pairs []pair
	for _, id := range o.router.EnrichmentPending(s) {
		rec, ok := s.Record(id)
		if !ok {
			continue
		}
		cls, _ := s.FinalClassification(id)
		pairs = append(pairs, pair{rec: *rec, cls: cls})
	}

	completed := 0
	enrich := func(ctx context.Context, p pair) (domain.Enrichment, error) {
		return o.enricher.Enrich(ctx, p.rec, p.cls)
	}
	out, err := diagnostics.ProcessBatch(ctx, o.retrier, pairs, enrich,
		diagnostics.BatchConfig{StopOnError: o.stopOnError})

	var u domain.Update
	for _, r := range out.Results {
		u.Enrichments = append(u.Enrichments, r.Value)
		o.metrics.ItemProcessed(string(domain.StageEnriching), "ok")
		completed++
		o.progress(s, domain.StageEnriching, completed, len(pairs), pairs[r.Index].rec.ID, true)
	}
	for _, ie := range out.Errors {
		if itemInterrupted(ie.Err) {
			continue
		}
		u.Errors = append(u.Errors, ie.Diagnosis.Record(domain.StageEnriching, pairs[ie.Index].rec.ID, ie.Retries))
		o.metrics.ItemProcessed(string(domain.StageEnriching), "error")
		completed++
		o.progress(s, domain.StageEnriching, completed, len(pairs), pairs[ie.Index].rec.ID, false)
	}
	s.Apply(u)

	o.logger.Info("enrichment finished",
		"session_id", s.SessionID,
		"succeeded", out.SuccessCount,
		"failed", out.FailureCount,
	)
	return err
}

// analyzeStage строит отчёт. Сбой текста отчёта не останавливает ход:
// цифры сохраняются, ошибка уходит в журнал.
func (o *Orchestrator) analyzeStage(ctx context.Context, s *domain.SessionState) error {
	report, err := o.analyzer.Analyze(ctx, s)
	if err != nil && ctx.Err() != nil {
		return err
	}

	report.Intent = s.Intent
	report.RecordCount = len(s.InputRecords)
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = o.now()
	}

	u := domain.Update{Analysis: &report}
	if err != nil {
		o.logger.Warn("analysis narrative failed", "session_id", s.SessionID, "error", err)
		u.Errors = []domain.ErrorRecord{errorRecord(domain.StageAnalyzing, "", err)}
	}
	s.Apply(u)
	return nil
}

// batchConfig собирает настройки исполнителя из governor.
// Размер чанка читается один раз на стадию.
func batchConfig[R any](o *Orchestrator, s *domain.SessionState, stage domain.Stage, recordID func(int) string) executor.Config[R] {
	return executor.Config[R]{
		BatchSize:       o.gov.BatchSize(),
		MaxConcurrency:  o.gov.MaxConcurrency(),
		InterBatchDelay: o.gov.InterBatchDelay(),
		StopOnError:     o.stopOnError,
		Grace:           o.cancelGrace,
		OnProgress: func(p executor.Progress[R]) {
			o.progress(s, stage, p.Completed, p.Total, recordID(p.Last.Index), p.Last.OK())
		},
		Logger: o.logger,
	}
}

func (o *Orchestrator) progress(s *domain.SessionState, stage domain.Stage, completed, total int, recordID string, ok bool) {
	o.notifier.OnProgress(events.Progress{
		SessionID: s.SessionID,
		Stage:     stage,
		Completed: completed,
		Total:     total,
		RecordID:  recordID,
		OK:        ok,
	})
}

func records(s *domain.SessionState, ids []string) []domain.InputRecord {
	out := make([]domain.InputRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.Record(id); ok {
			out = append(out, *rec)
		}
	}
	return out
}

// itemInterrupted — элемент прерван отменой хода. Такой элемент
// не попадает в журнал ошибок и будет обработан следующим ходом.
func itemInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

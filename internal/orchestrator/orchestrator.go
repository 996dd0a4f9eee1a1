package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Procura/internal/analysis"
	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/engine"
	"github.com/shaiso/Procura/internal/enrich"
	"github.com/shaiso/Procura/internal/events"
	"github.com/shaiso/Procura/internal/governor"
	"github.com/shaiso/Procura/internal/hitl"
	"github.com/shaiso/Procura/internal/repo"
	"github.com/shaiso/Procura/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxSteps    = 32
	defaultCancelGrace = 30 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CheckpointStore — хранилище снимков сессий.
// Load возвращает repo.ErrNotFound, если снимка нет.
type CheckpointStore interface {
	Load(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
}

// Classifier классифицирует одну запись.
type Classifier interface {
	Classify(ctx context.Context, rec domain.InputRecord) (domain.Classification, error)
}

// Evaluator оценивает классификацию по рубрике.
type Evaluator interface {
	Evaluate(ctx context.Context, rec domain.InputRecord, cls domain.Classification) (domain.QAResult, int, error)
}

// Enricher обогащает итоговую классификацию.
type Enricher interface {
	Enrich(ctx context.Context, rec domain.InputRecord, cls domain.Classification) (domain.Enrichment, error)
}

// Analyzer строит отчёт по сессии.
type Analyzer interface {
	Analyze(ctx context.Context, s *domain.SessionState) (domain.AnalysisReport, error)
}

// DecisionCache — кэш классификаций, учитывающий решения человека.
type DecisionCache interface {
	Correct(ctx context.Context, rec domain.InputRecord, original domain.Classification, d domain.HITLDecision) error
}

// Orchestrator ведёт сессии по стадиям конвейера.
type Orchestrator struct {
	store      CheckpointStore
	classifier Classifier
	evaluator  Evaluator
	enricher   Enricher
	analyzer   Analyzer

	decisions DecisionCache

	gov      *governor.Governor
	retrier  *diagnostics.Retrier
	router   engine.Router
	notifier events.Notifier
	metrics  *telemetry.Metrics

	stopOnError bool
	cancelGrace time.Duration
	maxSteps    int
	now         func() time.Time

	active *activeSessions
	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — чекпоинты сессий. Обязателен.
	Store CheckpointStore

	// Classifier и Evaluator — операции стадий classifying и qa. Обязательны.
	Classifier Classifier
	Evaluator  Evaluator

	// Enricher (default: enrich.New без справочника) и
	// Analyzer (default: analysis.New без генератора).
	Enricher Enricher
	Analyzer Analyzer

	// DecisionCache получает решения Resume, чтобы отклонённые и
	// исправленные классификации не возвращались из кэша. Необязателен.
	DecisionCache DecisionCache

	// Governor задаёт размер чанка, число чанков в волне и паузу
	// между волнами (default: governor.New с настройками по умолчанию).
	Governor *governor.Governor

	// Retrier — повторы операций обогащения.
	Retrier *diagnostics.Retrier

	// Notifier получает события хода (default: events.Nop).
	Notifier events.Notifier

	Metrics *telemetry.Metrics

	// AutoEnrich — обогащать без запроса в тексте.
	AutoEnrich bool

	// StopOnError — остановить стадию на первой неустранённой ошибке
	// элемента (continueOnError=false).
	StopOnError bool

	// CancelGrace — сколько начатые элементы стадии дорабатывают
	// после отмены хода (default: 30s).
	CancelGrace time.Duration

	// MaxSteps — предел переходов за один ход (default: 32).
	MaxSteps int

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithComponent(logger, "orchestrator")

	gov := cfg.Governor
	if gov == nil {
		gov = governor.New(governor.Config{Logger: logger})
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = diagnostics.NewRetrier(diagnostics.RetrierConfig{Metrics: cfg.Metrics, Logger: logger})
	}
	var enricher Enricher = cfg.Enricher
	if enricher == nil {
		enricher = enrich.New(nil, logger)
	}
	var analyzer Analyzer = cfg.Analyzer
	if analyzer == nil {
		analyzer = analysis.New(nil, retrier, logger)
	}
	var notifier events.Notifier = cfg.Notifier
	if notifier == nil {
		notifier = events.Nop{}
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	cancelGrace := cfg.CancelGrace
	if cancelGrace <= 0 {
		cancelGrace = defaultCancelGrace
	}

	return &Orchestrator{
		store:       cfg.Store,
		classifier:  cfg.Classifier,
		evaluator:   cfg.Evaluator,
		enricher:    enricher,
		analyzer:    analyzer,
		decisions:   cfg.DecisionCache,
		gov:         gov,
		retrier:     retrier,
		router:      engine.Router{AutoEnrich: cfg.AutoEnrich},
		notifier:    notifier,
		metrics:     cfg.Metrics,
		stopOnError: cfg.StopOnError,
		cancelGrace: cancelGrace,
		maxSteps:    maxSteps,
		now:         time.Now,
		active:      newActiveSessions(),
		logger:      logger,
	}
}

// Submit добавляет записи в сессию и проводит её по стадиям до конца хода.
//
// Новая сессия создаётся при первой подаче. Записи с уже известным ID
// заменяют прежние (upsert), их классификации не пересчитываются.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, records []domain.InputRecord, intent string) (*domain.SessionState, error) {
	if err := validateSubmit(sessionID, records); err != nil {
		return nil, err
	}

	release, err := o.active.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := o.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		s = domain.NewSessionState(sessionID)
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if err := o.begin(s); err != nil {
		return s.Clone(), err
	}

	if intent != "" {
		s.Intent = intent
	}
	if engine.EnrichmentIntent(intent) {
		s.EnrichmentRequested = true
	}
	s.Apply(domain.Update{Records: records})

	o.logger.Info("session submitted",
		"session_id", sessionID,
		"records", len(records),
		"total_records", len(s.InputRecords),
	)

	return o.run(ctx, s)
}

// Resume применяет решение человека и продолжает сессию с точки решения.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, decision domain.HITLDecision) (*domain.SessionState, error) {
	release, err := o.active.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.begin(s); err != nil {
		return s.Clone(), err
	}

	item, err := hitl.Apply(s, decision, o.now())
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	o.metrics.SetHITLPending(hitl.PendingCount(s))
	o.correctCache(ctx, s, item.RecordID, decision)

	o.logger.Info("hitl decision applied",
		"session_id", sessionID,
		"item_id", item.ID,
		"record_id", item.RecordID,
		"action", decision.Action,
		"pending", hitl.PendingCount(s),
	)

	o.transition(s, domain.StageHITL)
	return o.run(ctx, s)
}

// correctCache передаёт решение в кэш классификаций. Ошибка кэша
// не прерывает ход.
func (o *Orchestrator) correctCache(ctx context.Context, s *domain.SessionState, recordID string, d domain.HITLDecision) {
	if o.decisions == nil {
		return
	}
	rec, ok := s.Record(recordID)
	if !ok {
		return
	}
	cls, ok := s.Classification(recordID)
	if !ok {
		return
	}
	if err := o.decisions.Correct(ctx, *rec, *cls, d); err != nil {
		o.logger.Warn("cache correction failed",
			"session_id", s.SessionID,
			"record_id", recordID,
			"error", err,
		)
	}
}

// GetState возвращает последний сохранённый снимок сессии.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return o.load(ctx, sessionID)
}

// Queue возвращает нерешённые элементы проверки по приоритету.
func (o *Orchestrator) Queue(ctx context.Context, sessionID string) ([]domain.HITLItem, error) {
	s, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return hitl.Pending(s), nil
}

// ActiveSessions возвращает число сессий, по которым идёт ход.
func (o *Orchestrator) ActiveSessions() int {
	return o.active.count()
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	s, err := o.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return s, nil
}

// begin готовит сессию к новому ходу. Сессия с невосстановимой
// ошибкой дальше не ведётся; после восстановимой ошибки прошлого хода
// сессия возвращается в idle и роутер продолжает с незавершённой работы.
func (o *Orchestrator) begin(s *domain.SessionState) error {
	if s.Stage != domain.StageError {
		s.Fatal = nil
		return nil
	}
	if s.Fatal != nil && !s.Fatal.Recoverable {
		return fmt.Errorf("%w: %s at %s: %s", ErrSessionFailed, s.SessionID, s.Fatal.Stage, s.Fatal.Message)
	}
	s.Fatal = nil
	o.transition(s, domain.StageIdle)
	return nil
}

func validateSubmit(sessionID string, records []domain.InputRecord) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidInput)
	}
	for i := range records {
		if err := validate.Struct(records[i]); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrInvalidInput, i, err)
		}
	}
	return nil
}

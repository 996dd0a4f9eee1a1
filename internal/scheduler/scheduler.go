package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/telemetry"
)

// Default configuration values.
const (
	defaultSweepSpec = "*/5 * * * *"
	defaultPurgeSpec = "@hourly"
	defaultRetention = 7 * 24 * time.Hour
	failedReportMax  = 50
)

// Checkpoints — хранилище чекпоинтов с политикой хранения.
// Реализуется repo.CheckpointRepo и repo.MemoryCheckpoints.
type Checkpoints interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListByStage(ctx context.Context, stage domain.Stage, limit int) ([]string, error)
}

// Sweeper удаляет истёкшие записи кэша. Реализуется cache.Store.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Leader — выбор лидера между репликами. Реализуется repo.Leader.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// Scheduler — планировщик обслуживающих задач.
type Scheduler struct {
	checkpoints Checkpoints
	sweeper     Sweeper
	leader      Leader
	retention   time.Duration
	sweepSpec   string
	purgeSpec   string
	now         func() time.Time
	logger      *slog.Logger

	cron *cron.Cron
}

// Config — конфигурация Scheduler.
type Config struct {
	// Checkpoints — nil отключает очистку чекпоинтов.
	Checkpoints Checkpoints

	// Sweeper — nil отключает очистку кэша.
	Sweeper Sweeper

	// Leader — nil: задачи выполняются на каждой реплике.
	Leader Leader

	// Retention — сколько хранить чекпоинт без обновлений (default: 7d).
	Retention time.Duration

	// SweepSpec и PurgeSpec — расписания (default: "*/5 * * * *" и "@hourly").
	SweepSpec string
	PurgeSpec string

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	sweepSpec := cfg.SweepSpec
	if sweepSpec == "" {
		sweepSpec = defaultSweepSpec
	}
	purgeSpec := cfg.PurgeSpec
	if purgeSpec == "" {
		purgeSpec = defaultPurgeSpec
	}
	for _, spec := range []string{sweepSpec, purgeSpec} {
		if err := ValidateCronExpr(spec); err != nil {
			return nil, err
		}
	}

	return &Scheduler{
		checkpoints: cfg.Checkpoints,
		sweeper:     cfg.Sweeper,
		leader:      cfg.Leader,
		retention:   retention,
		sweepSpec:   sweepSpec,
		purgeSpec:   purgeSpec,
		now:         time.Now,
		logger:      telemetry.WithComponent(logger, "scheduler"),
	}, nil
}

// Start регистрирует задачи и запускает cron. Задачи выполняются
// с контекстом ctx; Stop дожидается текущих запусков.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"cache_sweep", s.sweepSpec, s.Sweep},
		{"checkpoint_purge", s.purgeSpec, s.Purge},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(ctx, j.name, j.run) }); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
		next, _ := NextRun(j.spec, s.now())
		s.logger.Info("job scheduled", "job", j.name, "spec", j.spec, "next_run", next)
	}

	s.cron.Start()
	return nil
}

// Stop останавливает cron и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// runJob выполняет задачу, если реплика — лидер.
func (s *Scheduler) runJob(ctx context.Context, name string, run func(context.Context) error) {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("leader election failed", "job", name, "error", err)
			return
		}
		if !ok {
			s.logger.Debug("not a leader, skipping job", "job", name)
			return
		}
	}

	start := time.Now()
	if err := run(ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
}

// Sweep удаляет истёкшие записи кэша.
func (s *Scheduler) Sweep(ctx context.Context) error {
	if s.sweeper == nil {
		return nil
	}
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep cache: %w", err)
	}
	if n > 0 {
		s.logger.Info("cache swept", "removed", n)
	}
	return nil
}

// Purge удаляет чекпоинты, не обновлявшиеся дольше Retention,
// и сообщает об оставшихся сессиях в стадии error.
func (s *Scheduler) Purge(ctx context.Context) error {
	if s.checkpoints == nil {
		return nil
	}

	cutoff := s.now().Add(-s.retention)
	n, err := s.checkpoints.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge checkpoints: %w", err)
	}
	s.logger.Info("checkpoints purged", "removed", n, "cutoff", cutoff)

	failed, err := s.checkpoints.ListByStage(ctx, domain.StageError, failedReportMax)
	if err != nil {
		return fmt.Errorf("list failed sessions: %w", err)
	}
	if len(failed) > 0 {
		s.logger.Warn("sessions stopped on error", "count", len(failed), "session_ids", failed)
	}
	return nil
}

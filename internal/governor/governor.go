package governor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	defaultBatchSize      = 10
	defaultMaxConcurrency = 3
	defaultMinBatchSize   = 1
	defaultMaxInFlight    = 30
)

// Governor — ограничитель частоты и параллелизма вызовов upstream.
type Governor struct {
	limiter  *rate.Limiter
	inflight *semaphore.Weighted

	maxInFlight     int64
	maxConcurrency  int
	interBatchDelay time.Duration

	mu           sync.Mutex
	batchSize    int
	minBatchSize int

	acquired atomic.Int64
	active   atomic.Int64

	logger *slog.Logger
}

// Config — конфигурация Governor.
type Config struct {
	// RequestsPerSecond — средняя частота вызовов; <= 0 — без ограничения.
	RequestsPerSecond float64

	// Burst — размер корзины токенов (default: 1).
	Burst int

	// MaxInFlight — потолок одновременных вызовов
	// (default: BatchSize × MaxConcurrency).
	MaxInFlight int

	// BatchSize — начальный размер чанка (default: 10).
	BatchSize int

	// MinBatchSize — нижняя граница при уменьшении (default: 1).
	MinBatchSize int

	// MaxConcurrency — число одновременно выполняемых чанков (default: 3).
	MaxConcurrency int

	// InterBatchDelay — пауза между волнами чанков.
	InterBatchDelay time.Duration

	Logger *slog.Logger
}

// New создаёт Governor.
func New(cfg Config) *Governor {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	minBatch := cfg.MinBatchSize
	if minBatch <= 0 {
		minBatch = defaultMinBatchSize
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	maxInFlight := int64(cfg.MaxInFlight)
	if maxInFlight <= 0 {
		maxInFlight = int64(batchSize * maxConcurrency)
		if maxInFlight <= 0 {
			maxInFlight = defaultMaxInFlight
		}
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Governor{
		limiter:         rate.NewLimiter(limit, burst),
		inflight:        semaphore.NewWeighted(maxInFlight),
		maxInFlight:     maxInFlight,
		maxConcurrency:  maxConcurrency,
		interBatchDelay: cfg.InterBatchDelay,
		batchSize:       batchSize,
		minBatchSize:    minBatch,
		logger:          logger,
	}
}

// Acquire ждёт токен и слот. Возвращённую release нужно вызвать
// после завершения вызова upstream.
func (g *Governor) Acquire(ctx context.Context) (func(), error) {
	if err := g.inflight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire in-flight slot: %w", err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.inflight.Release(1)
		return nil, fmt.Errorf("wait rate limiter: %w", err)
	}

	g.acquired.Add(1)
	g.active.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.active.Add(-1)
			g.inflight.Release(1)
		})
	}, nil
}

// BatchSize возвращает текущий размер чанка.
func (g *Governor) BatchSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.batchSize
}

// ReduceBatchSize уменьшает размер чанка вдвое (не ниже MinBatchSize)
// и возвращает новое значение.
func (g *Governor) ReduceBatchSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := max(g.batchSize/2, g.minBatchSize)
	if next != g.batchSize {
		g.logger.Warn("reducing batch size", "from", g.batchSize, "to", next)
		g.batchSize = next
	}
	return g.batchSize
}

// MaxConcurrency возвращает число одновременно выполняемых чанков.
func (g *Governor) MaxConcurrency() int {
	return g.maxConcurrency
}

// InterBatchDelay возвращает паузу между волнами.
func (g *Governor) InterBatchDelay() time.Duration {
	return g.interBatchDelay
}

// Stats — снимок состояния Governor.
type Stats struct {
	Acquired    int64
	Active      int64
	MaxInFlight int64
	BatchSize   int
}

// Stats возвращает статистику.
func (g *Governor) Stats() Stats {
	return Stats{
		Acquired:    g.acquired.Load(),
		Active:      g.active.Load(),
		MaxInFlight: g.maxInFlight,
		BatchSize:   g.BatchSize(),
	}
}

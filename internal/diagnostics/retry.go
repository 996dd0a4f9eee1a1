package diagnostics

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shaiso/Procura/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxDelay  = 30 * time.Second
	defaultJitterMin = 0.10
	defaultJitterMax = 0.30
)

// Retrier повторяет операции согласно политике категории ошибки.
type Retrier struct {
	maxDelay   time.Duration
	jitterMin  float64
	jitterMax  float64
	onFallback func(Diagnosis)

	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error

	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// RetrierConfig — конфигурация Retrier.
type RetrierConfig struct {
	// MaxDelay — потолок задержки (default: 30s).
	MaxDelay time.Duration

	// JitterMin, JitterMax — границы относительного джиттера
	// (default: 0.10 и 0.30).
	JitterMin float64
	JitterMax float64

	// OnFallback вызывается один раз на операцию, когда повторы
	// исчерпаны и у итоговой ошибки есть fallback-действие.
	OnFallback func(Diagnosis)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewRetrier создаёт Retrier.
func NewRetrier(cfg RetrierConfig) *Retrier {
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	jitterMin, jitterMax := cfg.JitterMin, cfg.JitterMax
	if jitterMin <= 0 || jitterMax < jitterMin {
		jitterMin, jitterMax = defaultJitterMin, defaultJitterMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Retrier{
		maxDelay:   maxDelay,
		jitterMin:  jitterMin,
		jitterMax:  jitterMax,
		onFallback: cfg.OnFallback,
		rand:       rand.Float64,
		sleep:      sleepContext,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Backoff вычисляет задержку перед повтором номер attempt (с нуля):
// min(base × 2^attempt, MaxDelay) с джиттером ±[JitterMin, JitterMax].
func (r *Retrier) Backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= r.maxDelay {
			delay = r.maxDelay
			break
		}
	}
	delay = min(delay, r.maxDelay)

	factor := r.jitterMin + (r.jitterMax-r.jitterMin)*r.rand()
	if r.rand() < 0.5 {
		factor = -factor
	}
	return time.Duration(float64(delay) * (1 + factor))
}

// Do выполняет op с повторами. Возвращает число выполненных повторов.
// Исчерпанная или невосстановимая ошибка возвращается как *Error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	_, retries, err := Retry(ctx, r, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return retries, err
}

// Retry выполняет op с повторами и возвращает результат последней попытки.
func Retry[T any](ctx context.Context, r *Retrier, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}

		d := Classify(err)
		if !d.Recoverable || attempt >= d.MaxRetries {
			if d.Fallback != FallbackNone && r.onFallback != nil {
				r.onFallback(d)
			}
			return zero, attempt, &Error{Diagnosis: d, Attempts: attempt + 1, Err: err}
		}

		delay := r.Backoff(attempt, d.BaseDelay)
		r.metrics.Retry(string(d.Category))
		r.logger.Debug("retrying operation",
			"category", d.Category,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		if err := r.sleep(ctx, delay); err != nil {
			return zero, attempt, &Error{Diagnosis: Classify(err), Attempts: attempt + 1, Err: err}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

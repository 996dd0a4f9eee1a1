package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	defaultBatchSize      = 10
	defaultMaxConcurrency = 3
)

// Config — конфигурация RunBatch.
type Config[R any] struct {
	// BatchSize — размер чанка (default: 10).
	BatchSize int

	// MaxConcurrency — число одновременно выполняемых чанков (default: 3).
	MaxConcurrency int

	// InterBatchDelay — пауза между волнами.
	InterBatchDelay time.Duration

	// StopOnError — не запускать новые волны после ошибки элемента.
	StopOnError bool

	// Grace — сколько начатые элементы могут работать после отмены ctx.
	// Ноль — без ограничения: начатый элемент доводится до конца.
	Grace time.Duration

	// OnProgress вызывается после каждого завершённого элемента
	// в порядке завершения. Вызовы сериализованы.
	OnProgress func(Progress[R])

	Logger *slog.Logger
}

// ItemResult — результат одного элемента.
type ItemResult[R any] struct {
	Index   int
	Value   R
	Err     error
	Skipped bool
}

// OK — элемент выполнен без ошибки.
func (r ItemResult[R]) OK() bool {
	return !r.Skipped && r.Err == nil
}

// Progress — уведомление о завершении элемента.
type Progress[R any] struct {
	Completed int
	Total     int
	Last      ItemResult[R]
}

// Outcome — итог RunBatch. Results индексирован как items.
type Outcome[R any] struct {
	Results   []ItemResult[R]
	Succeeded int
	Failed    int
	Skipped   int
	Waves     int
}

// Failures возвращает элементы с ошибкой.
func (o Outcome[R]) Failures() []ItemResult[R] {
	var out []ItemResult[R]
	for _, r := range o.Results {
		if !r.Skipped && r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// RunBatch выполняет op для каждого элемента.
//
// Отмена ctx останавливает запуск новых волн. Элементы текущей волны
// получают контекст без отмены и доводятся до конца (не дольше Grace),
// их результаты попадают в Outcome.
//
// Возвращает ctx.Err() при отмене и ErrStopped при StopOnError;
// в обоих случаях Outcome содержит частичные результаты.
func RunBatch[T, R any](ctx context.Context, items []T, op func(ctx context.Context, item T) (R, error), cfg Config[R]) (Outcome[R], error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := Outcome[R]{Results: make([]ItemResult[R], len(items))}
	for i := range out.Results {
		out.Results[i] = ItemResult[R]{Index: i, Skipped: true}
	}

	chunks := split(len(items), batchSize)
	waveSize := batchSize * maxConcurrency

	var (
		progressMu sync.Mutex
		completed  int
	)
	report := func(r ItemResult[R]) {
		if cfg.OnProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		cfg.OnProgress(Progress[R]{Completed: completed, Total: len(items), Last: r})
	}

	var stopErr error
	for start := 0; start < len(chunks); start += maxConcurrency {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if start > 0 && cfg.InterBatchDelay > 0 {
			if err := sleep(ctx, cfg.InterBatchDelay); err != nil {
				stopErr = err
				break
			}
		}

		wave := chunks[start:min(start+maxConcurrency, len(chunks))]
		out.Waves++
		logger.Debug("running wave",
			"wave", out.Waves,
			"chunks", len(wave),
			"wave_size", waveSize,
		)

		itemCtx, cancelItems := detach(ctx, cfg.Grace)
		var g errgroup.Group
		for _, c := range wave {
			g.Go(func() error {
				return runChunk(itemCtx, items, c, op, out.Results, report, cfg.StopOnError)
			})
		}
		err := g.Wait()
		cancelItems()
		if err != nil {
			stopErr = err
			break
		}
	}

	for _, r := range out.Results {
		switch {
		case r.Skipped:
			out.Skipped++
		case r.Err != nil:
			out.Failed++
		default:
			out.Succeeded++
		}
	}

	if stopErr != nil && out.Skipped > 0 {
		logger.Warn("batch stopped early",
			"skipped", out.Skipped,
			"total", len(items),
			"error", stopErr,
		)
	}
	return out, stopErr
}

type chunk struct{ lo, hi int }

func split(n, size int) []chunk {
	var out []chunk
	for lo := 0; lo < n; lo += size {
		out = append(out, chunk{lo: lo, hi: min(lo+size, n)})
	}
	return out
}

// runChunk запускает все элементы чанка одновременно и ждёт их.
// Каждая горутина пишет только в свой индекс results.
func runChunk[T, R any](ctx context.Context, items []T, c chunk, op func(context.Context, T) (R, error), results []ItemResult[R], report func(ItemResult[R]), stopOnError bool) error {
	var wg sync.WaitGroup
	for i := c.lo; i < c.hi; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := safeCall(ctx, items[i], op)
			r := ItemResult[R]{Index: i, Value: value, Err: err}
			results[i] = r
			report(r)
		}()
	}
	wg.Wait()

	if !stopOnError {
		return nil
	}
	for i := c.lo; i < c.hi; i++ {
		if results[i].Err != nil {
			return fmt.Errorf("item %d: %w: %w", i, ErrStopped, results[i].Err)
		}
	}
	return nil
}

// detach возвращает контекст элементов волны: значения ctx сохраняются,
// отмена ctx доходит до элементов только через grace.
func detach(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	itemCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if grace <= 0 {
		return itemCtx, cancel
	}
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(grace, cancel)
	})
	return itemCtx, func() {
		stop()
		cancel()
	}
}

// safeCall превращает панику операции в ошибку элемента.
func safeCall[T, R any](ctx context.Context, item T, op func(context.Context, T) (R, error)) (value R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("item operation panicked: %v", p)
		}
	}()
	return op(ctx, item)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

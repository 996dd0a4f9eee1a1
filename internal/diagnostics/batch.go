package diagnostics

import (
	"context"
	"errors"
	"fmt"
)

// BatchConfig — конфигурация ProcessBatch.
type BatchConfig struct {
	// StopOnError останавливает батч на первой неустранённой ошибке
	// (continueOnError=false). По умолчанию ошибки изолируются.
	StopOnError bool
}

// ItemResult — успешный результат элемента.
type ItemResult[R any] struct {
	Index   int
	Value   R
	Retries int
}

// ItemError — ошибка элемента после исчерпания политики.
type ItemError struct {
	Index     int
	Diagnosis Diagnosis
	Retries   int
	Err       error
}

// BatchResult — итог ProcessBatch.
type BatchResult[R any] struct {
	Results      []ItemResult[R]
	Errors       []ItemError
	SuccessCount int
	FailureCount int
}

// ProcessBatch последовательно выполняет op для каждого элемента через Retry.
//
// При StopOnError возвращает частичный результат и ErrBatchStopped.
// Отмена контекста останавливает батч до следующего элемента.
func ProcessBatch[T, R any](ctx context.Context, r *Retrier, items []T, op func(ctx context.Context, item T) (R, error), cfg BatchConfig) (BatchResult[R], error) {
	var out BatchResult[R]

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		value, retries, err := Retry(ctx, r, func(ctx context.Context, _ int) (R, error) {
			return op(ctx, item)
		})
		if err == nil {
			out.Results = append(out.Results, ItemResult[R]{Index: i, Value: value, Retries: retries})
			out.SuccessCount++
			continue
		}

		itemErr := ItemError{Index: i, Retries: retries, Err: err}
		var diagErr *Error
		if errors.As(err, &diagErr) {
			itemErr.Diagnosis = diagErr.Diagnosis
		} else {
			itemErr.Diagnosis = Classify(err)
		}
		out.Errors = append(out.Errors, itemErr)
		out.FailureCount++

		if cfg.StopOnError {
			return out, fmt.Errorf("item %d: %w", i, ErrBatchStopped)
		}
	}

	return out, nil
}

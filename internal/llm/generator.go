package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/governor"
	"github.com/shaiso/Procura/internal/telemetry"
)

// Generator — сервис генерации текста.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorFunc адаптирует функцию к Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Generate вызывает f.
func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Governed пропускает вызовы через Governor и учитывает латентность.
type Governed struct {
	next      Generator
	gov       *governor.Governor
	operation string
	metrics   *telemetry.Metrics
}

// NewGoverned оборачивает next. operation — метка метрики латентности.
func NewGoverned(next Generator, gov *governor.Governor, operation string, metrics *telemetry.Metrics) *Governed {
	return &Governed{next: next, gov: gov, operation: operation, metrics: metrics}
}

// Generate ждёт токен и слот Governor, затем вызывает next.
func (g *Governed) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.gov != nil {
		release, err := g.gov.Acquire(ctx)
		if err != nil {
			return "", err
		}
		defer release()
	}

	started := time.Now()
	out, err := g.next.Generate(ctx, systemPrompt, userPrompt)
	g.metrics.ObserveUpstream(g.operation, started, err)
	return out, err
}

// Fallback переключается на резервный генератор, если ошибка основного
// диагностирована с действием use_fallback_model.
type Fallback struct {
	primary   Generator
	secondary Generator
	logger    *slog.Logger
}

// NewFallback создаёт Fallback. secondary == nil отключает переключение.
func NewFallback(primary, secondary Generator, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Generate вызывает primary, при ошибке backend — secondary.
func (f *Fallback) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := f.primary.Generate(ctx, systemPrompt, userPrompt)
	if err == nil || f.secondary == nil {
		return out, err
	}

	d := diagnostics.Classify(err)
	if d.Fallback != diagnostics.FallbackUseFallbackModel {
		return out, err
	}

	f.logger.Warn("switching to fallback model", "category", d.Category, "error", err)
	out, fbErr := f.secondary.Generate(ctx, systemPrompt, userPrompt)
	if fbErr != nil {
		return "", errors.Join(err, fbErr)
	}
	return out, nil
}

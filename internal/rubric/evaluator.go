package rubric

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/llm"
)

// Evaluator запрашивает оценки измерений у модели и применяет Score.
type Evaluator struct {
	gen     llm.Generator
	retrier *diagnostics.Retrier
	logger  *slog.Logger
}

// Config — конфигурация Evaluator.
type Config struct {
	Generator llm.Generator
	Retrier   *diagnostics.Retrier
	Logger    *slog.Logger
}

// NewEvaluator создаёт Evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = diagnostics.NewRetrier(diagnostics.RetrierConfig{Logger: logger})
	}
	return &Evaluator{gen: cfg.Generator, retrier: retrier, logger: logger}
}

// Evaluate оценивает классификацию записи.
//
// Ошибка вызова модели после исчерпания повторов возвращается вызывающему.
// Неразборный ответ не является ошибкой: все измерения получают
// MissingScore, результат помечается Degraded.
func (e *Evaluator) Evaluate(ctx context.Context, rec domain.InputRecord, cls domain.Classification) (domain.QAResult, int, error) {
	user, err := userPrompt(rec, cls)
	if err != nil {
		return domain.QAResult{}, 0, err
	}

	text, retries, err := diagnostics.Retry(ctx, e.retrier, func(ctx context.Context, _ int) (string, error) {
		return e.gen.Generate(ctx, systemPrompt, user)
	})
	if err != nil {
		return domain.QAResult{}, retries, fmt.Errorf("evaluate %s: %w", rec.ID, err)
	}

	raw, err := ParseScores(text)
	if err != nil {
		e.logger.Warn("rubric response not parsed, using defaults",
			"record_id", rec.ID,
			"error", err,
		)
	}

	out := Score(raw, cls.Confidence)
	return domain.QAResult{
		ClassificationID: cls.RecordID,
		Dimensions:       out.Dimensions,
		WeightedScore:    out.WeightedScore,
		Verdict:          out.Verdict,
		Issues:           out.Issues,
		Degraded:         out.Degraded,
		EvaluatedAt:      time.Now(),
	}, retries, nil
}

type scoresResponse struct {
	Dimensions []struct {
		Name      string   `json:"name"`
		Score     *float64 `json:"score"`
		Rationale string   `json:"rationale"`
	} `json:"dimensions"`
}

// ParseScores разбирает ответ модели вида
// {"dimensions":[{"name":..., "score":..., "rationale":...}]}.
// Неизвестные измерения и элементы без score игнорируются.
func ParseScores(text string) (map[string]RawScore, error) {
	var resp scoresResponse
	if err := llm.ExtractJSON(text, &resp); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(Dimensions))
	for _, d := range Dimensions {
		known[d.Name] = true
	}

	out := make(map[string]RawScore, len(resp.Dimensions))
	for _, d := range resp.Dimensions {
		name := strings.ToLower(strings.TrimSpace(d.Name))
		if !known[name] || d.Score == nil {
			continue
		}
		out[name] = RawScore{Score: *d.Score, Rationale: d.Rationale}
	}
	return out, nil
}

var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You review UNSPSC classifications of procurement records.\n")
	b.WriteString("Score the classification from 0 to 100 on each dimension:\n")
	for _, d := range Dimensions {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	b.WriteString("Respond with JSON only: ")
	b.WriteString(`{"dimensions":[{"name":"accuracy","score":0,"rationale":"..."}]}`)
	return b.String()
}

func userPrompt(rec domain.InputRecord, cls domain.Classification) (string, error) {
	payload := map[string]any{
		"record": rec,
		"classification": map[string]any{
			"code":       cls.Code,
			"title":      cls.Title,
			"confidence": cls.Confidence,
			"reasoning":  cls.Reasoning,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal rubric prompt: %w", err)
	}
	return string(data), nil
}

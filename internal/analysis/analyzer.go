package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/enrich"
	"github.com/shaiso/Procura/internal/llm"
)

const systemPrompt = `You are a procurement analyst. Summarize the spend report for the user's request
in at most five sentences. Mention the largest segments, review backlog and data quality problems.
Use plain text, no markdown.`

// Analyzer строит AnalysisReport.
type Analyzer struct {
	gen     llm.Generator
	retrier *diagnostics.Retrier
	logger  *slog.Logger
}

// New создаёт Analyzer. gen == nil — отчёт без резюме.
func New(gen llm.Generator, retrier *diagnostics.Retrier, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if retrier == nil {
		retrier = diagnostics.NewRetrier(diagnostics.RetrierConfig{Logger: logger})
	}
	return &Analyzer{gen: gen, retrier: retrier, logger: logger}
}

// Analyze строит отчёт. Числовая часть строится всегда; ошибка
// резюме возвращается вместе с отчётом без Narrative.
func (a *Analyzer) Analyze(ctx context.Context, s *domain.SessionState) (domain.AnalysisReport, error) {
	report := Summarize(s)
	if a.gen == nil {
		return report, nil
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return report, fmt.Errorf("marshal report: %w", err)
	}
	user := "Request: " + s.Intent + "\nReport: " + string(payload)

	text, _, err := diagnostics.Retry(ctx, a.retrier, func(ctx context.Context, _ int) (string, error) {
		return a.gen.Generate(ctx, systemPrompt, user)
	})
	if err != nil {
		return report, fmt.Errorf("analysis narrative: %w", err)
	}
	report.Narrative = strings.TrimSpace(text)
	return report, nil
}

// Summarize считает числовую часть отчёта.
func Summarize(s *domain.SessionState) domain.AnalysisReport {
	report := domain.AnalysisReport{
		Intent:         s.Intent,
		RecordCount:    len(s.InputRecords),
		SpendBySegment: make(map[string]float64),
		VerdictCounts:  make(map[domain.Verdict]int),
		PendingReview:  s.PendingHITL(),
		Errors:         len(s.Errors),
		GeneratedAt:    time.Now(),
	}

	for _, qa := range s.QAResults {
		report.VerdictCounts[qa.Verdict]++
	}

	for _, rec := range s.InputRecords {
		cls, ok := s.FinalClassification(rec.ID)
		if !ok {
			report.Unclassified++
			continue
		}
		report.TotalSpend += rec.Amount

		segment, _, _, err := enrich.Hierarchy(cls.Code)
		if err != nil {
			segment = "unknown"
		}
		report.SpendBySegment[segment] += rec.Amount
	}
	return report
}

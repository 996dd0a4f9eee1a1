package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/Procura/internal/cache"
	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/llm"
	"github.com/shaiso/Procura/internal/taxonomy"
)

const defaultCandidates = 8

// ErrInvalidCode — модель вернула код не из 8 цифр.
var ErrInvalidCode = errors.New("invalid classification code")

// Classifier классифицирует записи.
type Classifier struct {
	gen        llm.Generator
	search     taxonomy.Searcher
	cache      *cache.ClassificationCache
	retrier    *diagnostics.Retrier
	candidates int
	logger     *slog.Logger
}

// Config — конфигурация Classifier.
type Config struct {
	Generator llm.Generator

	// Searcher — справочник кодов; nil — без кандидатов.
	Searcher taxonomy.Searcher

	// Cache — кэш классификаций; nil — без кэша.
	Cache *cache.ClassificationCache

	Retrier *diagnostics.Retrier

	// Candidates — сколько кандидатов передавать модели (default: 8).
	Candidates int

	Logger *slog.Logger
}

// New создаёт Classifier.
func New(cfg Config) *Classifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = diagnostics.NewRetrier(diagnostics.RetrierConfig{Logger: logger})
	}
	candidates := cfg.Candidates
	if candidates <= 0 {
		candidates = defaultCandidates
	}

	return &Classifier{
		gen:        cfg.Generator,
		search:     cfg.Searcher,
		cache:      cfg.Cache,
		retrier:    retrier,
		candidates: candidates,
		logger:     logger,
	}
}

// Classify возвращает классификацию записи.
// Ошибка после исчерпания повторов — *diagnostics.Error.
func (c *Classifier) Classify(ctx context.Context, rec domain.InputRecord) (domain.Classification, error) {
	if c.cache != nil {
		if cls, level := c.cache.Lookup(ctx, rec); level != cache.LevelMiss {
			c.logger.Debug("classification served from cache",
				"record_id", rec.ID,
				"level", level,
			)
			return cls, nil
		}
	}

	candidates := c.findCandidates(ctx, rec)
	user, err := userPrompt(rec, candidates)
	if err != nil {
		return domain.Classification{}, err
	}

	resp, retries, err := diagnostics.Retry(ctx, c.retrier, func(ctx context.Context, _ int) (modelResponse, error) {
		text, err := c.gen.Generate(ctx, systemPrompt, user)
		if err != nil {
			return modelResponse{}, err
		}
		return parseResponse(text)
	})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify %s: %w", rec.ID, err)
	}

	cls := domain.Classification{
		RecordID:   rec.ID,
		Code:       resp.Code,
		Title:      resp.Title,
		Confidence: domain.ClampConfidence(resp.Confidence),
		Reasoning:  resp.Reasoning,
		Source:     domain.SourceModel,
		Retries:    retries,
		CreatedAt:  time.Now(),
	}
	if cls.Title == "" {
		cls.Title = titleFor(cls.Code, candidates)
	}

	if c.cache != nil {
		if err := c.cache.Remember(ctx, rec, cls); err != nil {
			c.logger.Warn("cache write failed", "record_id", rec.ID, "error", err)
		}
	}
	return cls, nil
}

// findCandidates ищет кандидатов по описанию. Ошибка поиска не фатальна:
// модель классифицирует без подсказок.
func (c *Classifier) findCandidates(ctx context.Context, rec domain.InputRecord) []taxonomy.Candidate {
	if c.search == nil {
		return nil
	}

	found, _, err := diagnostics.Retry(ctx, c.retrier, func(ctx context.Context, _ int) ([]taxonomy.Candidate, error) {
		return c.search.Search(ctx, rec.Description, c.candidates)
	})
	if err != nil {
		c.logger.Warn("taxonomy search failed", "record_id", rec.ID, "error", err)
		return nil
	}
	return found
}

type modelResponse struct {
	Code       string  `json:"code"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func parseResponse(text string) (modelResponse, error) {
	var resp modelResponse
	if err := llm.ExtractJSON(text, &resp); err != nil {
		return modelResponse{}, err
	}
	resp.Code = strings.TrimSpace(resp.Code)
	if !taxonomy.IsCode(resp.Code) {
		return modelResponse{}, fmt.Errorf("%w: %q", ErrInvalidCode, resp.Code)
	}
	return resp, nil
}

func titleFor(code string, candidates []taxonomy.Candidate) string {
	for _, cand := range candidates {
		if cand.Code == code {
			return cand.Title
		}
	}
	return ""
}

const systemPrompt = `You classify procurement records into UNSPSC commodity codes.
Pick the most specific 8-digit code. Prefer one of the candidate codes when it fits.
Confidence is 0-100 and must reflect how certain the description makes the choice.
Respond with JSON only: {"code":"43211503","title":"Notebook computers","confidence":85,"reasoning":"..."}`

func userPrompt(rec domain.InputRecord, candidates []taxonomy.Candidate) (string, error) {
	payload := struct {
		Record     domain.InputRecord   `json:"record"`
		Candidates []taxonomy.Candidate `json:"candidates,omitempty"`
	}{rec, candidates}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal classify prompt: %w", err)
	}
	return string(data), nil
}

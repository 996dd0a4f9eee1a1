package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Procura/internal/analysis"
	"github.com/shaiso/Procura/internal/cache"
	"github.com/shaiso/Procura/internal/classify"
	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/events"
	"github.com/shaiso/Procura/internal/governor"
	"github.com/shaiso/Procura/internal/hitl"
	"github.com/shaiso/Procura/internal/llm"
	"github.com/shaiso/Procura/internal/mq"
	"github.com/shaiso/Procura/internal/repo"
	"github.com/shaiso/Procura/internal/rubric"
)

// --- helpers ---

type recorder struct {
	mu       sync.Mutex
	progress []events.Progress
	stages   []events.StageChange
	created  []events.HITLCreated
}

func (r *recorder) OnProgress(p events.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) OnStageChange(c events.StageChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, c)
}

func (r *recorder) OnHITLCreated(h events.HITLCreated) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, h)
}

func classificationJSON(code, title string, confidence float64) string {
	return fmt.Sprintf(`{"code":%q,"title":%q,"confidence":%g,"reasoning":"matches description"}`, code, title, confidence)
}

func scoresJSON(score float64) string {
	type dim struct {
		Name      string  `json:"name"`
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	}
	var dims []dim
	for _, d := range rubric.Dimensions {
		dims = append(dims, dim{Name: d.Name, Score: score, Rationale: "ok"})
	}
	data, _ := json.Marshal(map[string]any{"dimensions": dims})
	return string(data)
}

func fixed(text string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		return text, nil
	})
}

func fastRetrier() *diagnostics.Retrier {
	return diagnostics.NewRetrier(diagnostics.RetrierConfig{MaxDelay: time.Millisecond})
}

type harness struct {
	orch   *Orchestrator
	store  *repo.MemoryCheckpoints
	events *recorder
}

func newHarness(t *testing.T, classGen, rubricGen llm.Generator, mods ...func(*Config)) *harness {
	t.Helper()

	retrier := fastRetrier()
	store := repo.NewMemoryCheckpoints()
	rec := &recorder{}

	cfg := Config{
		Store:      store,
		Classifier: classify.New(classify.Config{Generator: classGen, Retrier: retrier}),
		Evaluator:  rubric.NewEvaluator(rubric.Config{Generator: rubricGen, Retrier: retrier}),
		Governor:   governor.New(governor.Config{BatchSize: 3, MaxConcurrency: 2}),
		Retrier:    retrier,
		Notifier:   rec,
	}
	for _, mod := range mods {
		mod(&cfg)
	}
	return &harness{orch: New(cfg), store: store, events: rec}
}

func laptops(n int) []domain.InputRecord {
	out := make([]domain.InputRecord, n)
	for i := range out {
		out[i] = domain.InputRecord{
			ID:          fmt.Sprintf("r%d", i+1),
			Vendor:      "Dell",
			Description: fmt.Sprintf("Dell laptop for new hire #%d", i+1),
			Amount:      1200,
		}
	}
	return out
}

// --- Submit ---

func TestSubmit_AllApproved(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 85)),
		fixed(scoresJSON(85)),
	)

	s, err := h.orch.Submit(context.Background(), "s1", laptops(10), "classify these")
	require.NoError(t, err)

	assert.Equal(t, []domain.Stage{
		domain.StageIdle, domain.StageClassifying, domain.StageQA, domain.StageRespond,
	}, s.Path(0))
	assert.Len(t, s.Classifications, 10)
	require.Len(t, s.QAResults, 10)
	for _, qa := range s.QAResults {
		assert.Equal(t, domain.VerdictApproved, qa.Verdict)
	}
	assert.Empty(t, s.HITLQueue)
	assert.Empty(t, s.Errors)
	assert.False(t, s.AwaitingDecision)
	assert.Contains(t, s.Response, "10 approved")

	h.events.mu.Lock()
	assert.Len(t, h.events.progress, 20)
	assert.Len(t, h.events.stages, 3)
	h.events.mu.Unlock()

	saved, err := h.orch.GetState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, s.Version, saved.Version)
	assert.Equal(t, domain.StageRespond, saved.Stage)
}

func TestSubmit_LowConfidenceQueuesReviewAndResumes(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, _, user string) (string, error) {
		if containsID(user, "r7") {
			return classificationJSON("43211503", "Notebook computers", 40), nil
		}
		return classificationJSON("43211503", "Notebook computers", 85), nil
	})
	h := newHarness(t, gen, fixed(scoresJSON(85)))
	ctx := context.Background()

	s, err := h.orch.Submit(ctx, "s1", laptops(10), "")
	require.NoError(t, err)

	require.Len(t, s.HITLQueue, 1)
	item := s.HITLQueue[0]
	assert.Equal(t, "r7", item.RecordID)
	assert.Equal(t, domain.PriorityHigh, item.Priority)
	assert.Equal(t, domain.HITLStatusPending, item.Status)
	assert.Contains(t, item.Reason, "low classification confidence")

	require.Len(t, s.QAResults, 10)
	approved := 0
	for _, qa := range s.QAResults {
		if qa.Verdict == domain.VerdictApproved {
			approved++
		}
	}
	assert.Equal(t, 9, approved)
	qa, ok := s.QAResult("r7")
	require.True(t, ok)
	assert.Equal(t, domain.VerdictFlagged, qa.Verdict)

	assert.Equal(t, domain.StageRespond, s.Stage)
	assert.True(t, s.AwaitingDecision)
	assert.Len(t, h.events.created, 1)

	queue, err := h.orch.Queue(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, item.ID, queue[0].ID)

	mark := len(s.Transitions)
	s, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: item.ID, Action: domain.ActionApprove, Reviewer: "alice"})
	require.NoError(t, err)

	assert.Equal(t, []domain.Stage{domain.StageRespond, domain.StageHITL, domain.StageRespond}, s.Path(mark))
	assert.False(t, s.AwaitingDecision)
	assert.Equal(t, 0, hitl.PendingCount(s))
	require.Len(t, s.HITLDecisions, 1)
	for _, rec := range s.InputRecords {
		final, ok := s.FinalClassification(rec.ID)
		require.True(t, ok, rec.ID)
		assert.Equal(t, "43211503", final.Code)
	}

	// классификации не пересчитываются
	assert.Len(t, s.Classifications, 10)
}

func TestSubmit_RateLimitRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("429 too many requests")
		}
		return classificationJSON("43211503", "Notebook computers", 85), nil
	})
	h := newHarness(t, gen, fixed(scoresJSON(85)))

	s, err := h.orch.Submit(context.Background(), "s1", laptops(1), "")
	require.NoError(t, err)

	require.Len(t, s.Classifications, 1)
	assert.Equal(t, 1, s.Classifications[0].Retries)
	assert.Empty(t, s.Errors)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSubmit_ItemErrorIsIsolated(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, _, user string) (string, error) {
		if json.Valid([]byte(user)) && containsID(user, "r2") {
			return "", errors.New("invalid api key")
		}
		return classificationJSON("43211503", "Notebook computers", 85), nil
	})
	h := newHarness(t, gen, fixed(scoresJSON(85)))

	s, err := h.orch.Submit(context.Background(), "s1", laptops(3), "")
	require.NoError(t, err)

	assert.Equal(t, domain.StageRespond, s.Stage)
	assert.Len(t, s.Classifications, 2)
	assert.Len(t, s.QAResults, 2)
	require.Len(t, s.Errors, 1)
	e := s.Errors[0]
	assert.Equal(t, domain.StageClassifying, e.Stage)
	assert.Equal(t, "r2", e.RecordID)
	assert.Equal(t, string(diagnostics.CategoryValidation), e.Code)
	assert.False(t, e.Recoverable)
	assert.Equal(t, 0, e.RetryCount)
	assert.Nil(t, s.Fatal)
}

func containsID(user, id string) bool {
	var payload struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	if err := json.Unmarshal([]byte(user), &payload); err != nil {
		return false
	}
	return payload.Record.ID == id
}

func TestSubmit_StopOnErrorFailsSession(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("invalid api key")
	})
	h := newHarness(t, gen, fixed(scoresJSON(85)), func(c *Config) {
		c.StopOnError = true
		c.Governor = governor.New(governor.Config{BatchSize: 1, MaxConcurrency: 1})
	})
	ctx := context.Background()

	s, err := h.orch.Submit(ctx, "s1", laptops(3), "")
	require.NoError(t, err)

	assert.Equal(t, domain.StageError, s.Stage)
	require.NotNil(t, s.Fatal)
	assert.False(t, s.Fatal.Recoverable)
	assert.Contains(t, s.Response, "Stopped at classifying")
	assert.Empty(t, s.Classifications)

	_, err = h.orch.Submit(ctx, "s1", nil, "")
	assert.ErrorIs(t, err, ErrSessionFailed)
}

func TestSubmit_RecoverableFailureResumesNextTurn(t *testing.T) {
	classGen := fixed(classificationJSON("43211503", "Notebook computers", 85))
	rubricGen := fixed(scoresJSON(85))
	h := newHarness(t, classGen, rubricGen, func(c *Config) { c.MaxSteps = 1 })
	ctx := context.Background()

	s, err := h.orch.Submit(ctx, "s1", laptops(2), "")
	require.ErrorIs(t, err, ErrStageLoop)
	assert.Equal(t, domain.StageError, s.Stage)
	require.NotNil(t, s.Fatal)
	assert.True(t, s.Fatal.Recoverable)
	assert.Len(t, s.Classifications, 2)
	assert.Empty(t, s.QAResults)

	retrier := fastRetrier()
	next := New(Config{
		Store:      h.store,
		Classifier: classify.New(classify.Config{Generator: classGen, Retrier: retrier}),
		Evaluator:  rubric.NewEvaluator(rubric.Config{Generator: rubricGen, Retrier: retrier}),
		Retrier:    retrier,
	})

	mark := len(s.Transitions)
	s, err = next.Submit(ctx, "s1", nil, "")
	require.NoError(t, err)

	assert.Equal(t, []domain.Stage{
		domain.StageError, domain.StageIdle, domain.StageQA, domain.StageRespond,
	}, s.Path(mark))
	assert.Nil(t, s.Fatal)
	assert.Len(t, s.QAResults, 2)
	assert.Len(t, s.Classifications, 2)
}

func TestSubmit_Enrichment(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 90)),
		fixed(scoresJSON(90)),
	)

	s, err := h.orch.Submit(context.Background(), "s1", laptops(2), "classify and enrich")
	require.NoError(t, err)

	assert.True(t, s.EnrichmentRequested)
	assert.Contains(t, s.Path(0), domain.StageEnriching)
	require.Len(t, s.Enrichments, 2)
	assert.Equal(t, "43000000", s.Enrichments[0].SegmentCode)
	assert.Equal(t, "43210000", s.Enrichments[0].FamilyCode)
	assert.Equal(t, "43211500", s.Enrichments[0].ClassCode)
	assert.Equal(t, domain.StageRespond, s.Stage)
}

func TestResume_RejectSkipsEnrichment(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 40)),
		fixed(scoresJSON(85)),
	)
	ctx := context.Background()

	s, err := h.orch.Submit(ctx, "s1", laptops(1), "enrich please")
	require.NoError(t, err)
	require.Len(t, s.HITLQueue, 1)

	s, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: s.HITLQueue[0].ID, Action: domain.ActionReject})
	require.NoError(t, err)

	assert.True(t, s.IsRejected("r1"))
	assert.Empty(t, s.Enrichments)
	assert.Equal(t, domain.StageRespond, s.Stage)
	assert.Len(t, s.Classifications, 1)
}

func TestResume_DecisionsCorrectClassificationCache(t *testing.T) {
	classCache := cache.NewClassificationCache(cache.ClassificationConfig{Store: cache.NewMemoryStore()})
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return classificationJSON("43211503", "Notebook computers", 40), nil
	})
	h := newHarness(t, gen, fixed(scoresJSON(85)), func(c *Config) {
		c.Classifier = classify.New(classify.Config{Generator: gen, Cache: classCache, Retrier: fastRetrier()})
		c.DecisionCache = classCache
	})
	ctx := context.Background()
	rec := laptops(1)[0]

	s, err := h.orch.Submit(ctx, "s1", laptops(1), "")
	require.NoError(t, err)
	require.Len(t, s.HITLQueue, 1)
	_, level := classCache.Lookup(ctx, rec)
	require.Equal(t, cache.LevelExact, level)

	_, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: s.HITLQueue[0].ID, Action: domain.ActionReject})
	require.NoError(t, err)
	_, level = classCache.Lookup(ctx, rec)
	assert.Equal(t, cache.LevelMiss, level, "rejected code is not served again")

	s, err = h.orch.Submit(ctx, "s2", laptops(1), "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	require.Len(t, s.HITLQueue, 1)

	_, err = h.orch.Resume(ctx, "s2", domain.HITLDecision{
		ItemID: s.HITLQueue[0].ID, Action: domain.ActionModify, Code: "43211507", Title: "Desktop computers",
	})
	require.NoError(t, err)

	got, level := classCache.Lookup(ctx, rec)
	assert.Equal(t, cache.LevelExact, level)
	assert.Equal(t, "43211507", got.Code)
	assert.Equal(t, 100.0, got.Confidence)
}

func TestSubmit_Analysis(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 85)),
		fixed(scoresJSON(85)),
		func(c *Config) {
			c.Analyzer = analysis.New(fixed("Laptop spend dominates."), fastRetrier(), nil)
		},
	)

	s, err := h.orch.Submit(context.Background(), "s1", laptops(2), "give me a spend analysis")
	require.NoError(t, err)

	assert.Contains(t, s.Path(0), domain.StageAnalyzing)
	require.NotNil(t, s.Analysis)
	assert.Equal(t, 2, s.Analysis.RecordCount)
	assert.InDelta(t, 2400.0, s.Analysis.TotalSpend, 1e-9)
	assert.Equal(t, "Laptop spend dominates.", s.Analysis.Narrative)
	assert.Contains(t, s.Response, "Laptop spend dominates.")
}

func TestSubmit_CanceledKeepsCheckpoint(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 85)),
		fixed(scoresJSON(85)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := h.orch.Submit(ctx, "s1", laptops(4), "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StageClassifying, s.Stage)
	assert.Empty(t, s.Classifications)
	assert.Empty(t, s.Errors)

	s, err = h.orch.Submit(context.Background(), "s1", nil, "")
	require.NoError(t, err)
	assert.Len(t, s.Classifications, 4)
	assert.Equal(t, domain.StageRespond, s.Stage)
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t, fixed(""), fixed(""))

	_, err := h.orch.Submit(context.Background(), "", laptops(1), "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.orch.Submit(context.Background(), "s1", []domain.InputRecord{{ID: "r1"}}, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmit_EmptySessionCompletes(t *testing.T) {
	h := newHarness(t, fixed(""), fixed(""))

	s, err := h.orch.Submit(context.Background(), "s1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StageComplete, s.Stage)
	assert.Equal(t, "No records submitted.", s.Response)
}

func TestSubmit_BusySession(t *testing.T) {
	h := newHarness(t, fixed(""), fixed(""))

	release, err := h.orch.active.acquire("s1")
	require.NoError(t, err)
	defer release()

	assert.Equal(t, 1, h.orch.ActiveSessions())
	_, err = h.orch.Submit(context.Background(), "s1", laptops(1), "")
	assert.ErrorIs(t, err, ErrSessionBusy)
}

// --- Resume / ApplyDecision ---

func TestResume_Errors(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 40)),
		fixed(scoresJSON(85)),
	)
	ctx := context.Background()

	_, err := h.orch.Resume(ctx, "missing", domain.HITLDecision{ItemID: "x", Action: domain.ActionApprove})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s, err := h.orch.Submit(ctx, "s1", laptops(1), "")
	require.NoError(t, err)
	itemID := s.HITLQueue[0].ID

	_, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: "nope", Action: domain.ActionApprove})
	assert.ErrorIs(t, err, hitl.ErrItemNotFound)

	_, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: itemID, Action: domain.ActionModify, Code: "123"})
	assert.ErrorIs(t, err, hitl.ErrInvalidDecision)

	_, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: itemID, Action: domain.ActionApprove})
	require.NoError(t, err)

	_, err = h.orch.Resume(ctx, "s1", domain.HITLDecision{ItemID: itemID, Action: domain.ActionApprove})
	assert.ErrorIs(t, err, hitl.ErrItemAlreadyDecided)
}

func TestApplyDecision(t *testing.T) {
	h := newHarness(t,
		fixed(classificationJSON("43211503", "Notebook computers", 40)),
		fixed(scoresJSON(85)),
	)
	ctx := context.Background()

	err := h.orch.ApplyDecision(ctx, mq.DecisionPayload{SessionID: "missing"})
	assert.True(t, mq.IsPermanent(err))

	s, err := h.orch.Submit(ctx, "s1", laptops(1), "")
	require.NoError(t, err)

	p := mq.DecisionPayload{
		SessionID: "s1",
		Decision: domain.HITLDecision{
			ItemID: s.HITLQueue[0].ID,
			Action: domain.ActionModify,
			Code:   "43211507",
			Title:  "Desktop computers",
		},
	}
	require.NoError(t, h.orch.ApplyDecision(ctx, p))
	// повторная доставка
	require.NoError(t, h.orch.ApplyDecision(ctx, p))

	s, err = h.orch.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s.HITLDecisions, 1)
	final, ok := s.FinalClassification("r1")
	require.True(t, ok)
	assert.Equal(t, "43211507", final.Code)

	release, err := h.orch.active.acquire("s1")
	require.NoError(t, err)
	err = h.orch.ApplyDecision(ctx, mq.DecisionPayload{SessionID: "s1", Decision: domain.HITLDecision{ItemID: "x", Action: domain.ActionApprove}})
	release()
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.False(t, mq.IsPermanent(err))
}

// --- helpers under test ---

func TestReduceBatchOnTokenLimit(t *testing.T) {
	g := governor.New(governor.Config{BatchSize: 8})
	hook := ReduceBatchOnTokenLimit(g, nil)

	hook(diagnostics.Classify(errors.New("429 too many requests")))
	assert.Equal(t, 8, g.BatchSize())

	hook(diagnostics.Classify(errors.New("prompt is too long: maximum context length exceeded")))
	assert.Equal(t, 4, g.BatchSize())
}

func TestSubmit_TokenLimitHalvesBatchOncePerItem(t *testing.T) {
	gov := governor.New(governor.Config{BatchSize: 8, MaxConcurrency: 1})
	retrier := diagnostics.NewRetrier(diagnostics.RetrierConfig{
		MaxDelay:   time.Millisecond,
		OnFallback: ReduceBatchOnTokenLimit(gov, nil),
	})
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("prompt is too long: maximum context length exceeded")
	})
	h := newHarness(t, gen, fixed(scoresJSON(85)), func(c *Config) {
		c.Governor = gov
		c.Classifier = classify.New(classify.Config{Generator: gen, Retrier: retrier})
	})

	s, err := h.orch.Submit(context.Background(), "s1", laptops(1), "")
	require.NoError(t, err)

	require.Len(t, s.Errors, 1)
	assert.Equal(t, string(diagnostics.CategoryTokenLimit), s.Errors[0].Code)
	assert.Equal(t, 2, s.Errors[0].RetryCount)
	assert.Equal(t, 4, gov.BatchSize())
}

func TestSummary_Fatal(t *testing.T) {
	s := domain.NewSessionState("s1")
	s.InputRecords = laptops(1)
	s.Fatal = &domain.ErrorRecord{Stage: domain.StageQA, Message: "boom", Remediation: "retry later"}

	got := Summary(s)
	assert.Contains(t, got, "Processed 1 record(s)")
	assert.Contains(t, got, "Stopped at qa: boom (retry later)")
}

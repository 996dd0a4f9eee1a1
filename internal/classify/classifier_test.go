package classify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Procura/internal/cache"
	"github.com/shaiso/Procura/internal/diagnostics"
	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/llm"
	"github.com/shaiso/Procura/internal/taxonomy"
)

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int) ([]taxonomy.Candidate, error) {
	return nil, errors.New("taxonomy search failed")
}

// noSleepRetrier — Retrier, не ждущий между попытками.
func noSleepRetrier() *diagnostics.Retrier {
	return diagnostics.NewRetrier(diagnostics.RetrierConfig{MaxDelay: time.Millisecond})
}

func TestClassify_ModelThenCache(t *testing.T) {
	var calls atomic.Int64
	var gotUser string
	gen := llm.GeneratorFunc(func(_ context.Context, _, user string) (string, error) {
		calls.Add(1)
		gotUser = user
		return `{"code":"43211503","confidence":85,"reasoning":"laptops"}`, nil
	})
	cc := cache.NewClassificationCache(cache.ClassificationConfig{Store: cache.NewMemoryStore()})
	c := New(Config{Generator: gen, Searcher: taxonomy.Default(), Cache: cc, Retrier: noSleepRetrier()})
	ctx := context.Background()

	rec := domain.InputRecord{ID: "r1", Vendor: "Dell Inc", Description: "Laptop computers"}
	cls, err := c.Classify(ctx, rec)

	require.NoError(t, err)
	assert.Equal(t, "43211503", cls.Code)
	assert.Equal(t, "Notebook computers", cls.Title, "title is filled from candidates")
	assert.Equal(t, domain.SourceModel, cls.Source)
	assert.Contains(t, gotUser, "43211503")

	again, err := c.Classify(ctx, domain.InputRecord{ID: "r2", Vendor: "DELL", Description: "laptop computers"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCacheExact, again.Source)
	assert.Equal(t, "r2", again.RecordID)
	assert.Equal(t, int64(1), calls.Load())

	vendor, err := c.Classify(ctx, domain.InputRecord{ID: "r3", Vendor: "Dell", Description: "docking station"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCacheVendor, vendor.Source)
	assert.InDelta(t, 76.5, vendor.Confidence, 1e-9)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClassify_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("429 rate limit")
		}
		return `{"code":"44121706","title":"Wooden pencils","confidence":90}`, nil
	})
	c := New(Config{Generator: gen, Retrier: noSleepRetrier()})

	cls, err := c.Classify(context.Background(), domain.InputRecord{ID: "r1", Description: "pencils"})

	require.NoError(t, err)
	assert.Equal(t, 1, cls.Retries)
	assert.Equal(t, int64(2), calls.Load())
}

func TestClassify_InvalidCodeFailsFast(t *testing.T) {
	var calls atomic.Int64
	gen := llm.GeneratorFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return `{"code":"4321","confidence":90}`, nil
	})
	c := New(Config{Generator: gen, Retrier: noSleepRetrier()})

	_, err := c.Classify(context.Background(), domain.InputRecord{ID: "r1", Description: "x"})

	var diagErr *diagnostics.Error
	require.ErrorAs(t, err, &diagErr)
	assert.Equal(t, diagnostics.CategoryValidation, diagErr.Diagnosis.Category)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClassify_SearchFailureIsNotFatal(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, _, user string) (string, error) {
		if strings.Contains(user, "candidates") {
			return "", errors.New("unexpected candidates")
		}
		return `{"code":"80101507","title":"IT consulting","confidence":120}`, nil
	})
	c := New(Config{Generator: gen, Searcher: failingSearcher{}, Retrier: noSleepRetrier()})

	cls, err := c.Classify(context.Background(), domain.InputRecord{ID: "r1", Description: "consulting"})

	require.NoError(t, err)
	assert.Equal(t, 100.0, cls.Confidence, "confidence is clamped")
}

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/shaiso/Procura/internal/domain"
)

// fakeClock — управляемые часы для проверки истечения.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// --- MemoryStore ---

func TestMemoryStore_LaterWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", []byte("first"), time.Minute))
	require.NoError(t, s.Set(ctx, "k", []byte("second"), time.Minute))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestMemoryStore_ExpiredIsMiss(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	clock.Advance(time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, s.Len(), "expired entry is evicted lazily on read")
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, s.Set(ctx, "long", []byte("v"), time.Hour))
	clock.Advance(time.Minute)

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now), WithDefaultTTL(time.Second))

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	clock.Advance(2 * time.Second)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set(ctx, "shared", []byte(fmt.Sprintf("v%d", i)), time.Minute)
			_, _ = s.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	_, err := s.Get(ctx, "shared")
	assert.NoError(t, err)
}

func TestMemoryStore_LastWriteWinsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := NewMemoryStore()
		key := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "key")
		values := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9]{0,12}`), 1, 10).Draw(t, "values")

		for _, v := range values {
			if err := s.Set(ctx, key, []byte(v), time.Hour); err != nil {
				t.Fatalf("set: %v", err)
			}
		}

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got) != values[len(values)-1] {
			t.Fatalf("expected %q, got %q", values[len(values)-1], got)
		}
	})
}

// --- RedisStore ---

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStoreFromClient(client, RedisConfig{})
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedis(t)

	require.NoError(t, s.Set(ctx, "k", []byte("one"), time.Minute))
	require.NoError(t, s.Set(ctx, "k", []byte("two"), time.Minute))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
	assert.True(t, mr.Exists(defaultKeyPrefix+"k"))
}

func TestRedisStore_ExpiredIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedis(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	_, s := setupRedis(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- ClassificationCache ---

func TestClassificationCache_Levels(t *testing.T) {
	ctx := context.Background()
	c := NewClassificationCache(ClassificationConfig{Store: NewMemoryStore()})

	rec := domain.InputRecord{ID: "r1", Vendor: "Acme Corp.", Description: "Laptop computers, 14 inch"}
	_, level := c.Lookup(ctx, rec)
	assert.Equal(t, LevelMiss, level)

	require.NoError(t, c.Remember(ctx, rec, domain.Classification{
		RecordID: "r1", Code: "43211503", Title: "Notebook computers", Confidence: 90,
	}))

	// точное попадание, другая запись с тем же содержимым
	got, level := c.Lookup(ctx, domain.InputRecord{ID: "r2", Vendor: "ACME corp", Description: "laptop computers 14 inch"})
	assert.Equal(t, LevelExact, level)
	assert.Equal(t, "r2", got.RecordID)
	assert.Equal(t, 90.0, got.Confidence)
	assert.Equal(t, domain.SourceCacheExact, got.Source)

	// попадание по поставщику со скидкой уверенности
	got, level = c.Lookup(ctx, domain.InputRecord{ID: "r3", Vendor: "Acme", Description: "docking station"})
	assert.Equal(t, LevelVendor, level)
	assert.InDelta(t, 81.0, got.Confidence, 1e-9)
	assert.Equal(t, domain.SourceCacheVendor, got.Source)
}

func TestClassificationCache_CorrectReject(t *testing.T) {
	ctx := context.Background()
	c := NewClassificationCache(ClassificationConfig{Store: NewMemoryStore()})

	rec := domain.InputRecord{ID: "r1", Vendor: "Acme", Description: "Laptop computers"}
	cls := domain.Classification{RecordID: "r1", Code: "43211503", Title: "Notebook computers", Confidence: 90}
	require.NoError(t, c.Remember(ctx, rec, cls))

	// поставщик уже переписан другой классификацией
	other := domain.InputRecord{ID: "r2", Vendor: "Acme", Description: "Office chairs"}
	require.NoError(t, c.Remember(ctx, other, domain.Classification{RecordID: "r2", Code: "56112102", Confidence: 95}))

	require.NoError(t, c.Correct(ctx, rec, cls, domain.HITLDecision{Action: domain.ActionReject}))

	_, level := c.Lookup(ctx, domain.InputRecord{ID: "r3", Vendor: "Acme", Description: "Laptop computers"})
	assert.Equal(t, LevelVendor, level, "exact entry removed, unrelated vendor entry kept")

	got, level := c.Lookup(ctx, other)
	assert.Equal(t, LevelExact, level)
	assert.Equal(t, "56112102", got.Code)
}

func TestClassificationCache_CorrectModify(t *testing.T) {
	ctx := context.Background()
	c := NewClassificationCache(ClassificationConfig{Store: NewMemoryStore()})

	rec := domain.InputRecord{ID: "r1", Vendor: "Acme", Description: "Laptop computers"}
	cls := domain.Classification{RecordID: "r1", Code: "43211503", Title: "Notebook computers", Confidence: 40}
	require.NoError(t, c.Remember(ctx, rec, cls))

	require.NoError(t, c.Correct(ctx, rec, cls, domain.HITLDecision{
		Action: domain.ActionModify, Code: "43211507", Title: "Desktop computers",
	}))

	got, level := c.Lookup(ctx, rec)
	assert.Equal(t, LevelExact, level)
	assert.Equal(t, "43211507", got.Code)
	assert.Equal(t, "Desktop computers", got.Title)
	assert.Equal(t, 100.0, got.Confidence)

	require.NoError(t, c.Correct(ctx, rec, got, domain.HITLDecision{Action: domain.ActionApprove}))
	got, _ = c.Lookup(ctx, rec)
	assert.Equal(t, "43211507", got.Code)
}

func TestClassificationCache_VendorLevelNeedsConfidence(t *testing.T) {
	ctx := context.Background()
	c := NewClassificationCache(ClassificationConfig{Store: NewMemoryStore()})

	rec := domain.InputRecord{ID: "r1", Vendor: "Globex", Description: "consulting"}
	require.NoError(t, c.Remember(ctx, rec, domain.Classification{Code: "80101500", Confidence: 60}))

	_, level := c.Lookup(ctx, domain.InputRecord{ID: "r2", Vendor: "Globex", Description: "catering"})
	assert.Equal(t, LevelMiss, level)
}

func TestClassificationCache_NoVendor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewClassificationCache(ClassificationConfig{Store: store})

	rec := domain.InputRecord{ID: "r1", Description: "paper"}
	require.NoError(t, c.Remember(ctx, rec, domain.Classification{Code: "14111500", Confidence: 95}))

	assert.Equal(t, 1, store.Len(), "only the exact level is written without a vendor")
	assert.Empty(t, VendorKey("  "))
}

func TestExactKey_TruncatesDescription(t *testing.T) {
	c := NewClassificationCache(ClassificationConfig{Store: NewMemoryStore(), DescriptionLength: 10})

	a := c.ExactKey("Acme", "Office chairs, ergonomic, black")
	b := c.ExactKey("acme inc", "office chairs ergonomic white")
	assert.Equal(t, a, b)
}

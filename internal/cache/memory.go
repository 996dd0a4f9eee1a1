package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

const defaultTTL = 24 * time.Hour

// entry — запись in-memory кэша.
type entry struct {
	value  []byte
	expiry time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && !now.Before(e.expiry)
}

// MemoryStore — in-memory Store процесса.
//
// Истечение ленивое: проверяется при чтении. Sweep дополнительно
// вычищает истёкшие записи (его вызывает планировщик по cron).
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// MemoryOption настраивает MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithDefaultTTL задаёт TTL по умолчанию.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает значение ключа; истёкшая запись удаляется.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}

	if e.expired(s.now()) {
		s.mu.Lock()
		// запись могли перезаписать между RUnlock и Lock
		if cur, ok := s.entries[key]; ok && cur.expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrMiss
	}

	return slices.Clone(e.value), nil
}

// Set записывает значение целиком.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:  slices.Clone(value),
		expiry: s.now().Add(ttl),
	}
	return nil
}

// Delete удаляет ключ.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep удаляет все истёкшие записи.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len возвращает число записей, включая ещё не вычищенные истёкшие.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

package repo

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/Procura/internal/domain"
)

// MemoryCheckpoints — хранилище чекпоинтов в памяти процесса с той же
// семантикой версий, что и CheckpointRepo. Для тестов и запуска без БД.
type MemoryCheckpoints struct {
	mu    sync.RWMutex
	items map[string]*domain.SessionState
	now   func() time.Time
}

// NewMemoryCheckpoints создаёт пустое хранилище.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{
		items: make(map[string]*domain.SessionState),
		now:   time.Now,
	}
}

// Load возвращает копию последнего снимка.
func (m *MemoryCheckpoints) Load(_ context.Context, sessionID string) (*domain.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Save сохраняет копию снимка и увеличивает state.Version.
func (m *MemoryCheckpoints) Save(_ context.Context, state *domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.items[state.SessionID]; ok {
		stored = cur.Version
	}
	if stored != state.Version {
		return fmt.Errorf("%w: session %s", ErrVersionConflict, state.SessionID)
	}

	state.Version++
	state.UpdatedAt = m.now()
	m.items[state.SessionID] = state.Clone()
	return nil
}

// DeleteBefore удаляет снимки, не обновлявшиеся с cutoff.
func (m *MemoryCheckpoints) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.items {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// ListByStage возвращает ID сессий в указанной стадии, новые первыми.
func (m *MemoryCheckpoints) ListByStage(_ context.Context, stage domain.Stage, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []*domain.SessionState
	for _, s := range m.items {
		if s.Stage == stage {
			found = append(found, s)
		}
	}
	slices.SortFunc(found, func(a, b *domain.SessionState) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	ids := make([]string, 0, len(found))
	for i, s := range found {
		if limit > 0 && i >= limit {
			break
		}
		ids = append(ids, s.SessionID)
	}
	return ids, nil
}

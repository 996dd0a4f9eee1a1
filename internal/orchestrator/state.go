package orchestrator

import "sync"

// activeSessions — сессии, по которым сейчас выполняется ход.
type activeSessions struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newActiveSessions() *activeSessions {
	return &activeSessions{busy: make(map[string]struct{})}
}

// acquire помечает сессию занятой. Возвращает функцию освобождения.
func (a *activeSessions) acquire(sessionID string) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.busy[sessionID]; ok {
		return nil, ErrSessionBusy
	}
	a.busy[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.busy, sessionID)
			a.mu.Unlock()
		})
	}, nil
}

// count возвращает число занятых сессий.
func (a *activeSessions) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.busy)
}

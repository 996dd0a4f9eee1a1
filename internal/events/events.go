package events

import (
	"time"

	"github.com/shaiso/Procura/internal/domain"
)

// Progress — завершение обработки одного элемента стадии.
type Progress struct {
	SessionID string       `json:"session_id"`
	Stage     domain.Stage `json:"stage"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	RecordID  string       `json:"record_id"`
	OK        bool         `json:"ok"`
}

// StageChange — переход сессии между стадиями.
type StageChange struct {
	SessionID string       `json:"session_id"`
	From      domain.Stage `json:"from"`
	To        domain.Stage `json:"to"`
	At        time.Time    `json:"at"`
}

// HITLCreated — создан элемент очереди ручной проверки.
type HITLCreated struct {
	SessionID string          `json:"session_id"`
	Item      domain.HITLItem `json:"item"`
}

// Notifier получает уведомления. Вызовы не должны блокировать вызывающего.
type Notifier interface {
	OnProgress(Progress)
	OnStageChange(StageChange)
	OnHITLCreated(HITLCreated)
}

// Nop — Notifier, который ничего не делает.
type Nop struct{}

func (Nop) OnProgress(Progress)       {}
func (Nop) OnStageChange(StageChange) {}
func (Nop) OnHITLCreated(HITLCreated) {}

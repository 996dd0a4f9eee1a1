package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 256

// Dispatcher раздаёт события подписчикам из одной фоновой горутины.
//
// Порядок событий сохраняется для каждого подписчика. Если буфер полон,
// событие отбрасывается и учитывается в Dropped.
type Dispatcher struct {
	sinks  []Notifier
	logger *slog.Logger

	mu     sync.RWMutex
	queue  chan func(Notifier)
	closed bool

	dropped atomic.Int64
	done    chan struct{}
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	// Sinks — подписчики.
	Sinks []Notifier

	// Buffer — размер очереди событий (default: 256).
	Buffer int

	Logger *slog.Logger
}

// NewDispatcher создаёт Dispatcher и запускает доставку.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sinks:  cfg.Sinks,
		logger: logger,
		queue:  make(chan func(Notifier), buffer),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) OnProgress(p Progress) {
	d.enqueue(func(n Notifier) { n.OnProgress(p) })
}

func (d *Dispatcher) OnStageChange(c StageChange) {
	d.enqueue(func(n Notifier) { n.OnStageChange(c) })
}

func (d *Dispatcher) OnHITLCreated(h HITLCreated) {
	d.enqueue(func(n Notifier) { n.OnHITLCreated(h) })
}

// Dropped возвращает число отброшенных событий.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close доставляет оставшиеся события и останавливает Dispatcher.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) enqueue(ev func(Notifier)) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		if d.dropped.Add(1) == 1 {
			d.logger.Warn("event buffer full, dropping events")
		}
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for ev := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, ev)
		}
	}
}

func (d *Dispatcher) deliver(sink Notifier, ev func(Notifier)) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panicked", "recover", r)
		}
	}()
	ev(sink)
}

// LogSink пишет события в лог.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSink) OnProgress(p Progress) {
	s.log().Debug("item processed",
		"session_id", p.SessionID,
		"stage", p.Stage,
		"record_id", p.RecordID,
		"completed", p.Completed,
		"total", p.Total,
		"ok", p.OK,
	)
}

func (s LogSink) OnStageChange(c StageChange) {
	s.log().Info("stage changed",
		"session_id", c.SessionID,
		"from", c.From,
		"to", c.To,
	)
}

func (s LogSink) OnHITLCreated(h HITLCreated) {
	s.log().Info("hitl item created",
		"session_id", h.SessionID,
		"item_id", h.Item.ID,
		"record_id", h.Item.RecordID,
		"priority", h.Item.Priority,
	)
}

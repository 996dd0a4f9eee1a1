package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "procura"

// Metrics — набор Prometheus-метрик конвейера.
//
// Создаётся один раз на процесс (или на тест) и передаётся компонентам
// явно. nil-значение *Metrics допустимо: все методы становятся no-op.
type Metrics struct {
	StageTransitions *prometheus.CounterVec
	ItemsProcessed   *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	HITLCreated      *prometheus.CounterVec
	HITLPending      prometheus.Gauge
	UpstreamLatency  *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg.
// Для production передаётся prometheus.DefaultRegisterer,
// в тестах — prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		StageTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage transitions made by the pipeline router",
		}, []string{"from", "to"}),

		ItemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Items processed per stage and outcome",
		}, []string{"stage", "outcome"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Classification cache lookups per level and result",
		}, []string{"level", "result"}),

		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Upstream call retries per error category",
		}, []string{"category"}),

		HITLCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hitl_items_created_total",
			Help:      "Human review items created per priority",
		}, []string{"priority"}),

		HITLPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hitl_items_pending",
			Help:      "Human review items awaiting a decision in the last processed session",
		}),

		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Latency of text-generation calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation", "outcome"}),
	}
}

// StageTransition учитывает переход между стадиями.
func (m *Metrics) StageTransition(from, to string) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(from, to).Inc()
}

// ItemProcessed учитывает обработанный элемент стадии.
func (m *Metrics) ItemProcessed(stage, outcome string) {
	if m == nil {
		return
	}
	m.ItemsProcessed.WithLabelValues(stage, outcome).Inc()
}

// CacheLookup учитывает обращение к кэшу.
func (m *Metrics) CacheLookup(level, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(level, result).Inc()
}

// Retry учитывает повтор вызова.
func (m *Metrics) Retry(category string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(category).Inc()
}

// HITLItemCreated учитывает новый элемент очереди.
func (m *Metrics) HITLItemCreated(priority string) {
	if m == nil {
		return
	}
	m.HITLCreated.WithLabelValues(priority).Inc()
}

// SetHITLPending выставляет число ожидающих элементов.
func (m *Metrics) SetHITLPending(n int) {
	if m == nil {
		return
	}
	m.HITLPending.Set(float64(n))
}

// ObserveUpstream фиксирует длительность вызова модели.
func (m *Metrics) ObserveUpstream(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamLatency.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

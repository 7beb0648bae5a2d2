package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// ResultOK — projection завершилась успешно.
	ResultOK = "ok"
	// ResultError — projection прервана ошибкой (например, неизвестный handler).
	ResultError = "error"
)

// ReplayMetrics содержит метрики replay и записи событий.
// Все методы безопасны для nil-получателя: метрики в тестах можно не подключать.
type ReplayMetrics struct {
	// Счётчики построения projection
	projections        *prometheus.CounterVec
	projectionDuration prometheus.Histogram

	// Счётчики событий
	eventsApplied  *prometheus.CounterVec
	eventsAppended *prometheus.CounterVec

	rehydrations prometheus.Counter
	snapshots    prometheus.Counter
}

// NewReplayMetrics создаёт метрики в глобальном реестре Prometheus.
func NewReplayMetrics() *ReplayMetrics {
	return NewReplayMetricsWith(prometheus.DefaultRegisterer)
}

// NewReplayMetricsWith создаёт метрики в переданном реестре.
func NewReplayMetricsWith(registerer prometheus.Registerer) *ReplayMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReplayMetrics{
		projections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_replay_projections_total",
			Help: "Total number of order projections grouped by result",
		}, []string{"result"}),
		projectionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "oms_replay_projection_duration_seconds",
			Help:    "Duration of a full replay fold in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		eventsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_replay_events_applied_total",
			Help: "Total number of events folded through reducers grouped by type",
		}, []string{"type"}),
		eventsAppended: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_replay_events_appended_total",
			Help: "Total number of events appended to the event log grouped by type",
		}, []string{"type"}),
		rehydrations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_replay_rehydrations_total",
			Help: "Total number of engines seeded from a snapshot",
		}),
		snapshots: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_replay_snapshots_total",
			Help: "Total number of snapshots captured",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordProjection учитывает одну projection: результат и длительность fold.
func (m *ReplayMetrics) RecordProjection(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.projections.WithLabelValues(result).Inc()
	m.projectionDuration.Observe(duration.Seconds())
}

// RecordEventApplied увеличивает счётчик применённых событий данного типа.
func (m *ReplayMetrics) RecordEventApplied(eventType string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(eventType).Inc()
}

// RecordEventAppended увеличивает счётчик записанных в лог событий.
func (m *ReplayMetrics) RecordEventAppended(eventType string) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(eventType).Inc()
}

// RecordRehydration учитывает инициализацию engine из снапшота.
func (m *ReplayMetrics) RecordRehydration() {
	if m == nil {
		return
	}
	m.rehydrations.Inc()
}

// RecordSnapshot учитывает сохранённый снапшот.
func (m *ReplayMetrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.snapshots.Inc()
}

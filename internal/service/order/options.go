package order

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/metrics"
	"github.com/vladislavdragonenkov/order-replay/internal/replay"
)

// ServiceOptions задаёт параметры Service.
type ServiceOptions struct {
	Logger    *log.Entry
	Clock     domain.Clock
	Metrics   *metrics.ReplayMetrics
	Publisher EventPublisher
	TraceSink replay.TraceSink
	// SnapshotPolicy решает, когда снимать снапшот после записи события; nil отключает автоснапшоты.
	SnapshotPolicy    replay.SnapshotPolicy
	RecordRehydration bool
	ExclusiveBoundary bool
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithClock задаёт источник времени для событий и снапшотов.
func WithClock(clock domain.Clock) Option {
	return func(opts *ServiceOptions) {
		opts.Clock = clock
	}
}

// WithMetrics подключает метрики replay.
func WithMetrics(m *metrics.ReplayMetrics) Option {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// WithPublisher задаёт паблишер записанных событий.
func WithPublisher(publisher EventPublisher) Option {
	return func(opts *ServiceOptions) {
		opts.Publisher = publisher
	}
}

// WithTraceSink задаёт получателя trace каждой projection.
func WithTraceSink(sink replay.TraceSink) Option {
	return func(opts *ServiceOptions) {
		opts.TraceSink = sink
	}
}

// WithSnapshotEvery снимает снапшот каждые n записанных событий заказа.
func WithSnapshotEvery(n int) Option {
	return func(opts *ServiceOptions) {
		if n > 0 {
			opts.SnapshotPolicy = replay.EventCountPolicy{N: n}
		}
	}
}

// WithSnapshotPolicy задаёт произвольную политику снапшотов.
func WithSnapshotPolicy(policy replay.SnapshotPolicy) Option {
	return func(opts *ServiceOptions) {
		opts.SnapshotPolicy = policy
	}
}

// WithRehydrationAudit включает запись Init-события регидрации в лог.
func WithRehydrationAudit(enabled bool) Option {
	return func(opts *ServiceOptions) {
		opts.RecordRehydration = enabled
	}
}

// WithExclusiveBoundary переключает выборку после снапшота на строгую границу.
func WithExclusiveBoundary(enabled bool) Option {
	return func(opts *ServiceOptions) {
		opts.ExclusiveBoundary = enabled
	}
}

func defaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		Clock: domain.ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
}

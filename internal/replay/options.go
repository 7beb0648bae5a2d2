package replay

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/metrics"
)

// EngineOptions задаёт параметры Engine.
type EngineOptions struct {
	Clock   domain.Clock
	Sink    TraceSink
	Logger  *log.Entry
	Metrics *metrics.ReplayMetrics
	// RecordRehydration — записывать ли синтезированное Init-событие в общий лог.
	RecordRehydration bool
	// ExclusiveBoundary — отбрасывать события с CreatedAt, равным времени снапшота.
	ExclusiveBoundary bool
	// SnapshotFirst ставит синтезированный Init перед событиями из лога и пропускает
	// прежние события регидрации.
	SnapshotFirst bool
	NewID         func() string
}

// Option настраивает Engine.
type Option func(*EngineOptions)

// WithClock задаёт источник времени.
func WithClock(clock domain.Clock) Option {
	return func(opts *EngineOptions) {
		opts.Clock = clock
	}
}

// WithTraceSink задаёт получателя trace.
func WithTraceSink(sink TraceSink) Option {
	return func(opts *EngineOptions) {
		opts.Sink = sink
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *EngineOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ReplayMetrics) Option {
	return func(opts *EngineOptions) {
		opts.Metrics = m
	}
}

// WithRehydrationAudit включает или выключает запись Init-события регидрации в лог.
func WithRehydrationAudit(enabled bool) Option {
	return func(opts *EngineOptions) {
		opts.RecordRehydration = enabled
	}
}

// WithExclusiveBoundary переключает нижнюю границу выборки после снапшота на строгую (>).
func WithExclusiveBoundary(enabled bool) Option {
	return func(opts *EngineOptions) {
		opts.ExclusiveBoundary = enabled
	}
}

// WithSnapshotFirst включает порядок "снапшот, затем события после него".
// Нужен долгоживущему хосту: иначе каждый следующий replay перекрывает снапшотом
// события, записанные после него.
func WithSnapshotFirst(enabled bool) Option {
	return func(opts *EngineOptions) {
		opts.SnapshotFirst = enabled
	}
}

// WithIDGenerator задаёт генератор идентификаторов событий.
func WithIDGenerator(newID func() string) Option {
	return func(opts *EngineOptions) {
		opts.NewID = newID
	}
}

func defaultEngineOptions() EngineOptions {
	return EngineOptions{
		Clock:             domain.ClockFunc(func() time.Time { return time.Now().UTC() }),
		Sink:              DiscardSink{},
		RecordRehydration: true,
		NewID:             uuid.NewString,
	}
}

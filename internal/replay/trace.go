package replay

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// TraceRecord — диагностическая запись об одном применённом событии.
type TraceRecord struct {
	Handler   domain.EventType `json:"handler"`
	EventID   string           `json:"event_id"`
	OrderID   string           `json:"order_id"`
	CreatedAt time.Time        `json:"created_at"`
	Payload   json.RawMessage  `json:"payload"`
	State     domain.State     `json:"state"`
}

// TraceSink получает trace каждой успешной projection. Что с ним делать, решает хост.
type TraceSink interface {
	Trace(record TraceRecord)
}

// TraceSinkFunc адаптирует функцию к TraceSink.
type TraceSinkFunc func(record TraceRecord)

// Trace вызывает функцию.
func (f TraceSinkFunc) Trace(record TraceRecord) { f(record) }

// DiscardSink отбрасывает trace.
type DiscardSink struct{}

// Trace ничего не делает.
func (DiscardSink) Trace(TraceRecord) {}

// LogSink пишет trace в logrus, по строке на событие.
type LogSink struct {
	logger *log.Entry
	level  log.Level
}

// NewLogSink создаёт sink поверх logger; nil — логгер по умолчанию.
func NewLogSink(logger *log.Entry, level log.Level) *LogSink {
	if logger == nil {
		logger = log.WithField("component", "replay-trace")
	}
	return &LogSink{logger: logger, level: level}
}

// Trace логирует handler, время, payload и полученное состояние.
func (s *LogSink) Trace(record TraceRecord) {
	state, _ := record.State.Encode()
	s.logger.WithFields(log.Fields{
		"handler":    record.Handler,
		"event_id":   record.EventID,
		"order_id":   record.OrderID,
		"created_at": record.CreatedAt.Format(time.RFC3339Nano),
		"payload":    string(record.Payload),
		"state":      string(state),
	}).Log(s.level, "executed event")
}

// Collector накапливает trace в памяти.
type Collector struct {
	mu      sync.Mutex
	records []TraceRecord
}

// Trace добавляет запись.
func (c *Collector) Trace(record TraceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

// Records возвращает копию накопленных записей.
func (c *Collector) Records() []TraceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TraceRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Reset очищает накопленные записи.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// MultiSink рассылает trace нескольким sink по порядку.
type MultiSink []TraceSink

// Trace передаёт запись каждому sink.
func (m MultiSink) Trace(record TraceRecord) {
	for _, sink := range m {
		if sink != nil {
			sink.Trace(record)
		}
	}
}

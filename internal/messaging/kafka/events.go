package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/replay"
)

// Topics для Kafka
const (
	// TopicOrderEvents получает каждое записанное в лог событие заказа.
	TopicOrderEvents = "oms.order.events"
	// TopicReplayTrace получает trace каждой projection.
	TopicReplayTrace = "oms.replay.trace"
	// TopicOrderIngest — входящие события от внешних command handlers.
	TopicOrderIngest     = "oms.order.ingest"
	TopicDeadLetterQueue = "oms.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// EventEnvelope — сообщение с событием заказа на проводе.
type EventEnvelope struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEventEnvelope упаковывает событие для публикации.
func NewEventEnvelope(event domain.Event) EventEnvelope {
	return EventEnvelope{
		ID:        event.ID,
		OrderID:   event.OrderID,
		Type:      string(event.Type),
		CreatedAt: event.CreatedAt.UTC(),
		Payload:   event.Payload,
	}
}

// Event возвращает доменное событие. Пустой payload становится {}.
func (e EventEnvelope) Event() domain.Event {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return domain.Event{
		ID:        e.ID,
		OrderID:   e.OrderID,
		Type:      domain.EventType(e.Type),
		CreatedAt: e.CreatedAt.UTC(),
		Payload:   payload,
	}
}

// TraceMessage — одна запись trace на проводе.
type TraceMessage struct {
	Handler   string          `json:"handler"`
	EventID   string          `json:"event_id"`
	OrderID   string          `json:"order_id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
	State     domain.State    `json:"state"`
}

// NewTraceMessage конвертирует запись trace.
func NewTraceMessage(record replay.TraceRecord) TraceMessage {
	return TraceMessage{
		Handler:   string(record.Handler),
		EventID:   record.EventID,
		OrderID:   record.OrderID,
		CreatedAt: record.CreatedAt.UTC(),
		Payload:   record.Payload,
		State:     record.State,
	}
}

// ParseEventEnvelope парсит EventEnvelope из тела сообщения.
func ParseEventEnvelope(value []byte) (EventEnvelope, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return EventEnvelope{}, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	return envelope, nil
}

package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// EventSink принимает входящее событие: обычно это order.Service.Append.
type EventSink interface {
	Append(ctx context.Context, event domain.Event) error
}

// NewIngestHandler возвращает MessageHandler, который записывает события из topic в лог.
// Без ID событие получает uuid, выведенный из topic/partition/offset, поэтому повторная доставка
// не порождает дубль. Без created_at берётся время сообщения Kafka.
// Невалидные сообщения помечаются как permanent и уходят в DLQ без повторов.
func NewIngestHandler(sink EventSink) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseEventEnvelope(message.Value)
		if err != nil {
			return Permanent(err)
		}
		if envelope.OrderID == "" && len(message.Key) > 0 {
			envelope.OrderID = string(message.Key)
		}
		if envelope.ID == "" {
			envelope.ID = messageEventID(message)
		}
		if envelope.CreatedAt.IsZero() {
			envelope.CreatedAt = message.Timestamp
		}

		event := envelope.Event()
		if err := event.Validate(); err != nil {
			return Permanent(err)
		}
		if err := sink.Append(ctx, event); err != nil {
			if errors.Is(err, domain.ErrInvalidPayload) || errors.Is(err, domain.ErrUnknownHandler) ||
				errors.Is(err, domain.ErrEventOutOfOrder) {
				return Permanent(err)
			}
			return fmt.Errorf("ingest event %s: %w", event.ID, err)
		}
		return nil
	}
}

func messageEventID(message *sarama.ConsumerMessage) string {
	name := fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

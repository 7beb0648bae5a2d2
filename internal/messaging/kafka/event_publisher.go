package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// EventPublisher публикует записанные события заказа в Kafka topic.
type EventPublisher struct {
	producer *Producer
	topic    string
	breaker  *CircuitBreaker
}

// NewEventPublisher создаёт паблишер; пустой topic означает TopicOrderEvents.
func NewEventPublisher(producer *Producer, topic string) *EventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &EventPublisher{producer: producer, topic: topic}
}

// WithBreaker включает circuit breaker для публикаций.
func (p *EventPublisher) WithBreaker(breaker *CircuitBreaker) *EventPublisher {
	p.breaker = breaker
	return p
}

// Publish отправляет событие, ключ сообщения — идентификатор заказа.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka event publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	send := func() error {
		return p.producer.PublishEvent(p.topic, event.OrderID, NewEventEnvelope(event), sarama.RecordHeader{
			Key:   []byte("event-type"),
			Value: []byte(event.Type),
		})
	}
	if p.breaker == nil {
		return send()
	}
	return p.breaker.Execute("publish", send)
}

package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/replay"
)

func sampleEvent() domain.Event {
	return domain.Event{
		ID:        "e1",
		OrderID:   "order-123",
		Type:      domain.EventTypeDeliveryAddressUpdated,
		CreatedAt: time.Date(2022, 9, 17, 12, 15, 0, 0, time.UTC),
		Payload:   json.RawMessage(`{"firstName":"alice","lastName":"wonderland"}`),
	}
}

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	err := producer.PublishEvent(TopicOrderEvents, "order-123", NewEventEnvelope(sampleEvent()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", NewEventEnvelope(sampleEvent()))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_NilGuards(t *testing.T) {
	var producer *Producer
	if err := producer.PublishEvent(TopicOrderEvents, "k", struct{}{}); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close nil producer should not fail: %v", err)
	}
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	event := sampleEvent()

	envelope := NewEventEnvelope(event)
	if envelope.Type != string(domain.EventTypeDeliveryAddressUpdated) || envelope.OrderID != event.OrderID {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	back := envelope.Event()
	if back.ID != event.ID || back.Type != event.Type || !back.CreatedAt.Equal(event.CreatedAt) {
		t.Fatalf("unexpected event: %+v", back)
	}
	if string(back.Payload) != string(event.Payload) {
		t.Fatalf("unexpected payload: %s", back.Payload)
	}

	if got := string((EventEnvelope{}).Event().Payload); got != "{}" {
		t.Fatalf("empty payload must become {}, got %s", got)
	}
}

func TestNewTraceMessage(t *testing.T) {
	record := replay.TraceRecord{
		Handler:   domain.EventTypeInit,
		EventID:   "e1",
		OrderID:   "order-1",
		CreatedAt: time.Date(2022, 9, 17, 10, 0, 0, 0, time.UTC),
		Payload:   json.RawMessage(`{"orderId":1}`),
		State:     domain.State{"orderId": float64(1)},
	}

	message := NewTraceMessage(record)
	if message.Handler != "Init" || message.EventID != "e1" || message.OrderID != "order-1" {
		t.Fatalf("unexpected trace message: %+v", message)
	}

	data, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal trace message: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal trace message: %v", err)
	}
	if decoded["state"].(map[string]any)["orderId"] != float64(1) {
		t.Fatalf("unexpected state on wire: %s", data)
	}
}

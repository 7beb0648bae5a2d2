package kafka

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/replay"
)

// TraceSink отправляет trace projection в Kafka.
// Ошибки публикации только логируются: trace диагностический и не влияет на результат replay.
type TraceSink struct {
	producer *Producer
	topic    string
	logger   *log.Entry
}

// NewTraceSink создаёт sink; пустой topic означает TopicReplayTrace.
func NewTraceSink(producer *Producer, topic string, logger *log.Entry) *TraceSink {
	if topic == "" {
		topic = TopicReplayTrace
	}
	if logger == nil {
		logger = log.WithField("component", "kafka-trace-sink")
	}
	return &TraceSink{producer: producer, topic: topic, logger: logger}
}

// Trace публикует запись с ключом заказа.
func (s *TraceSink) Trace(record replay.TraceRecord) {
	if err := s.producer.PublishEvent(s.topic, record.OrderID, NewTraceMessage(record)); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": record.OrderID,
			"event_id": record.EventID,
		}).Warn("failed to publish trace record")
	}
}

var _ replay.TraceSink = (*TraceSink)(nil)

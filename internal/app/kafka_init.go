package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer, если brokers не пустой.
// Возвращает nil, nil, если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// startIngestConsumer запускает consumer входящих событий заказов.
// Сообщения, которые не удалось записать после retries, уходят в DLQ через producer.
func startIngestConsumer(ctx context.Context, cfg Config, sink kafka.EventSink, dlq *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if !cfg.KafkaEnabled() || cfg.KafkaIngestTopic == "" {
		return nil, nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		cfg.KafkaBrokers,
		cfg.KafkaGroupID,
		[]string{cfg.KafkaIngestTopic},
		kafka.NewIngestHandler(sink),
		dlq,
		cfg.KafkaMaxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, fmt.Errorf("start ingest consumer: %w", err)
	}

	logger.WithFields(log.Fields{
		"topic":    cfg.KafkaIngestTopic,
		"group_id": cfg.KafkaGroupID,
	}).Info("kafka ingest consumer started")
	return consumer, nil
}

// stopConsumer останавливает consumer, если он не nil.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}

// closeKafka закрывает Kafka producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/outbox"
)

// publishers — куда outbox worker отправляет события и DLQ.
type publishers struct {
	producer *kafka.Producer
	main     domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// initPublishers создаёт Kafka producer, если брокеры заданы.
// Без брокеров или при ошибке подключения события пишутся в лог, а DLQ не используется.
func initPublishers(cfg Config, logger *log.Entry) publishers {
	logPublisher := outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher"))
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers не заданы, события outbox пишутся в лог")
		return publishers{main: logPublisher}
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return publishers{main: logPublisher}
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return publishers{
		producer: producer,
		main:     kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
	}
}

// closeKafka закрывает Kafka producer если он не nil.
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

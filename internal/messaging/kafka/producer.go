// Package kafka публикует события заказов в Kafka через sarama.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ErrProducerClosed клиент закрыт или не знает ни одного брокера.
var ErrProducerClosed = errors.New("kafka producer is not connected")

// syncSender часть sarama.SyncProducer, которой пользуется Producer.
type syncSender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// Producer синхронно публикует события; сообщение считается доставленным
// после подтверждения всеми ISR.
type Producer struct {
	client sarama.Client
	sender syncSender
	logger *log.Entry
	now    func() time.Time
}

func newSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	// idempotent producer требует не больше одного запроса в полёте
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам и создаёт idempotent sync producer.
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	client, err := sarama.NewClient(brokers, newSaramaConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	sender, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Producer{
		client: client,
		sender: sender,
		logger: log.WithField("component", "kafka-producer"),
		now:    time.Now,
	}, nil
}

// PublishEvent отправляет событие в topic. originalTopic попадает в заголовки,
// для DLQ это основной топик событий.
func (p *Producer) PublishEvent(ctx context.Context, topic, originalTopic string, event OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event %s: %w", event.ID, err)
	}

	partition, offset, err := p.sender.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(event.Key()),
		Value:     sarama.ByteEncoder(value),
		Headers:   event.Headers(originalTopic),
		Timestamp: p.now(),
	})
	fields := log.Fields{
		"topic":      topic,
		"order_id":   event.OrderID,
		"event_type": event.EventType,
	}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("failed to send order event")
		return fmt.Errorf("send order event %s: %w", event.ID, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("order event sent")
	return nil
}

// Check используется health probe: клиент открыт и знает хотя бы один брокер.
func (p *Producer) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.client == nil {
		return nil
	}
	if p.client.Closed() || len(p.client.Brokers()) == 0 {
		return ErrProducerClosed
	}
	return nil
}

// Close закрывает producer, затем клиент.
func (p *Producer) Close() error {
	var errs []error
	if err := p.sender.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
	}
	if p.client != nil && !p.client.Closed() {
		if err := p.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka client: %w", err))
		}
	}
	return errors.Join(errs...)
}

package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// OutboxTopicPublisher доставляет outbox-сообщения в один топик.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher для topic; пустой topic означает основной топик событий.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}
	return p.producer.PublishEvent(ctx, p.topic, TopicOrderEvents, NewOrderEvent(msg, p.now()))
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	logger := log.New()
	logger.Out = io.Discard

	mock := mocks.NewSyncProducer(t, nil)
	t.Cleanup(func() { _ = mock.Close() })
	return &Producer{
		sender: mock,
		logger: log.NewEntry(logger),
		now:    time.Now,
	}, mock
}

func TestProducer_PublishEvent(t *testing.T) {
	producer, mock := newTestProducer(t)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return fmt.Errorf("unexpected key %q", key)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderEventType] != string(EventTypeOrderCreated) || headers[HeaderSchemaVersion] != "1" {
			return fmt.Errorf("unexpected headers %v", headers)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event OrderEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.OrderID != "order-123" || event.EventType != EventTypeOrderCreated {
			return errors.New("unexpected event body")
		}
		return nil
	})

	event := NewOrderEvent(domain.OutboxMessage{
		ID:            "evt-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"status":"pending"}`),
	}, time.Now())
	require.NoError(t, producer.PublishEvent(context.Background(), TopicOrderEvents, TopicOrderEvents, event))
}

func TestProducer_PublishEvent_BrokerError(t *testing.T) {
	producer, mock := newTestProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(context.Background(), TopicOrderEvents, TopicOrderEvents, OrderEvent{ID: "evt-2", OrderID: "order-123"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProducer_PublishEvent_CanceledContext(t *testing.T) {
	producer, _ := newTestProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// мок без ожиданий: отправка упала бы на Close
	err := producer.PublishEvent(ctx, TopicOrderEvents, TopicOrderEvents, OrderEvent{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProducer_PublishEvent_InvalidPayload(t *testing.T) {
	producer, _ := newTestProducer(t)

	err := producer.PublishEvent(context.Background(), TopicOrderEvents, TopicOrderEvents, OrderEvent{
		ID:      "evt-3",
		Payload: json.RawMessage("{broken"),
	})
	assert.ErrorContains(t, err, "marshal order event evt-3")
}

func TestProducer_CheckWithoutClient(t *testing.T) {
	producer, _ := newTestProducer(t)
	assert.NoError(t, producer.Check(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, producer.Check(ctx), context.Canceled)
}

func TestOrderEvent_KeyFallsBackToID(t *testing.T) {
	assert.Equal(t, "order-1", OrderEvent{ID: "evt", OrderID: "order-1"}.Key())
	assert.Equal(t, "evt", OrderEvent{ID: "evt"}.Key())
}

func TestNewOrderEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	event := NewOrderEvent(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderDeleted,
		Payload:       []byte("not json"),
	}, at)

	assert.Equal(t, EventTypeOrderDeleted, event.EventType)
	assert.Equal(t, "order-1", event.OrderID)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.JSONEq(t, "null", string(event.Payload))
	assert.True(t, event.PublishedAt.Equal(at))

	_, err := json.Marshal(event)
	assert.NoError(t, err)
}

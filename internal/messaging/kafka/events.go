package kafka

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// EventType тип события заказа в топике.
type EventType string

// Совпадают с типами timeline и outbox.
const (
	EventTypeOrderCreated       = EventType(domain.EventOrderCreated)
	EventTypeOrderUpdated       = EventType(domain.EventOrderUpdated)
	EventTypeOrderStatusChanged = EventType(domain.EventOrderStatusChanged)
	EventTypeOrderDeleted       = EventType(domain.EventOrderDeleted)
)

const (
	TopicOrderEvents     = "furniture.order.events"
	TopicDeadLetterQueue = "furniture.order.events.dlq"
)

const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderSchemaVersion = "x-schema-version"
)

// SchemaVersion версия конверта OrderEvent. Поднимается при несовместимых изменениях.
const SchemaVersion = 1

// OrderEvent конверт события заказа в топике.
type OrderEvent struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	OrderID       string          `json:"order_id"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOrderEvent заворачивает outbox-сообщение в конверт. Невалидный JSON
// в payload заменяется на null, чтобы конверт всегда сериализовался.
func NewOrderEvent(msg domain.OutboxMessage, at time.Time) OrderEvent {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return OrderEvent{
		ID:            msg.ID,
		EventType:     EventType(msg.EventType),
		AggregateType: msg.AggregateType,
		OrderID:       msg.AggregateID,
		SchemaVersion: SchemaVersion,
		Payload:       payload,
		PublishedAt:   at,
	}
}

// Key ключ партиционирования: все события одного заказа идут в одну партицию.
func (e OrderEvent) Key() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.ID
}

// Headers заголовки сообщения; originalTopic указывает, куда событие шло изначально.
func (e OrderEvent) Headers(originalTopic string) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(e.EventType)},
		{Key: []byte(HeaderAggregateType), Value: []byte(e.AggregateType)},
		{Key: []byte(HeaderOriginalTopic), Value: []byte(originalTopic)},
		{Key: []byte(HeaderSchemaVersion), Value: []byte(strconv.Itoa(e.SchemaVersion))},
	}
}

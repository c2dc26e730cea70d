package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Типы событий таймлайна и outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

// AggregateTypeOrder — тип агрегата в outbox.
const AggregateTypeOrder = "order"

// OrderEvent — полезная нагрузка outbox-сообщения о заказе.
type OrderEvent struct {
	EventType   string          `json:"event_type"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	Deleted     bool            `json:"deleted"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewOrderEvent собирает событие по текущему состоянию агрегата.
func NewOrderEvent(eventType string, order Order, at time.Time) OrderEvent {
	count := 0
	for _, item := range order.Items {
		if !item.Deleted {
			count++
		}
	}
	return OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		ItemCount:   count,
		Deleted:     order.Deleted,
		Timestamp:   at,
	}
}

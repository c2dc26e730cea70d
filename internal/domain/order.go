package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен, обработка ещё не началась.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ собирается.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен клиентом. Терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён. Терминальный статус, удалением не является.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// ParseOrderStatus проверяет строковое значение статуса.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода. Переход в тот же статус разрешён.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	// ProductName копируется из товара при оформлении, как и цена.
	ProductName string
	Quantity    int32
	// UnitPrice — снимок цены товара на момент оформления, не следует за каталогом.
	UnitPrice decimal.Decimal
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	UserID          string
	Status          OrderStatus
	FullName        string
	PhoneNumber     string
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Items           []OrderItem
	Version         int64
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecalculateTotal пересчитывает итог по активным позициям.
func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		if item.Deleted {
			continue
		}
		total = total.Add(item.LineTotal())
	}
	o.TotalAmount = total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, errors.New("order user_id is required"))
	}
	if _, ok := ParseOrderStatus(string(o.Status)); !ok {
		errs = append(errs, errors.New("order status is unknown"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	calc := decimal.Zero
	for i, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, &InvalidQuantityError{Index: i, ProductID: item.ProductID, Quantity: item.Quantity})
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, errors.New("item unit price must be non-negative"))
		}
		if !item.Deleted {
			calc = calc.Add(item.LineTotal())
		}
	}
	if !calc.Equal(o.TotalAmount) {
		errs = append(errs, errors.New("order total does not match items sum"))
	}

	return errs
}

// OrderItemRequest — позиция входящей команды создания заказа.
type OrderItemRequest struct {
	ProductID string
	Quantity  int32
}

// CreateOrderCommand описывает оформление заказа.
type CreateOrderCommand struct {
	UserID          string
	FullName        string
	PhoneNumber     string
	ShippingAddress string
	Items           []OrderItemRequest
}

// OrderUpdate — частичное обновление скалярных полей заказа. Позиции не меняются.
type OrderUpdate struct {
	Status          Optional[OrderStatus] `json:"status"`
	FullName        Optional[string]      `json:"fullName"`
	PhoneNumber     Optional[string]      `json:"phoneNumber"`
	ShippingAddress Optional[string]      `json:"shippingAddress"`
}

// IsEmpty сообщает, что команда не содержит ни одного поля.
func (u OrderUpdate) IsEmpty() bool {
	return !u.Status.IsSet() && !u.FullName.IsSet() && !u.PhoneNumber.IsSet() && !u.ShippingAddress.IsSet()
}

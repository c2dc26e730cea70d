package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem — строка корзины. Пара UserID и ProductID уникальна.
type CartItem struct {
	UserID    string
	ProductID string
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine — строка корзины с текущей ценой товара.
type CartLine struct {
	ProductID   string
	ProductName string
	Quantity    int32
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Cart — корзина покупателя. Цены берутся из каталога в момент чтения,
// снимок цены появляется только в оформленном заказе.
type Cart struct {
	UserID string
	Lines  []CartLine
	// Unavailable перечисляет товары, удалённые из каталога после добавления в корзину.
	Unavailable []string
	TotalAmount decimal.Decimal
}

// CheckoutCommand описывает оформление заказа из корзины.
// Пустые контактные поля берутся из профиля пользователя.
type CheckoutCommand struct {
	UserID          string
	FullName        string
	PhoneNumber     string
	ShippingAddress string
}

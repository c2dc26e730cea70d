package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category группирует товары каталога.
type Category struct {
	ID          string
	Name        string
	Description string
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CategoryUpdate — частичное обновление категории.
type CategoryUpdate struct {
	Name        Optional[string] `json:"name"`
	Description Optional[string] `json:"description"`
}

// IsEmpty сообщает, что команда не содержит ни одного поля.
func (u CategoryUpdate) IsEmpty() bool {
	return !u.Name.IsSet() && !u.Description.IsSet()
}

// Product — товар каталога.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	// CategoryID пустой, если товар не привязан к категории.
	CategoryID string
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateProductCommand описывает новый товар.
type CreateProductCommand struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	CategoryID  string
}

// ProductUpdate — частичное обновление товара.
type ProductUpdate struct {
	Name        Optional[string]          `json:"name"`
	Description Optional[string]          `json:"description"`
	Price       Optional[decimal.Decimal] `json:"price"`
	ImageURL    Optional[string]          `json:"imageUrl"`
	CategoryID  Optional[string]          `json:"categoryId"`
}

// IsEmpty сообщает, что команда не содержит ни одного поля.
func (u ProductUpdate) IsEmpty() bool {
	return !u.Name.IsSet() && !u.Description.IsSet() && !u.Price.IsSet() && !u.ImageURL.IsSet() && !u.CategoryID.IsSet()
}

// ProductFilter задаёт выборку товаров.
type ProductFilter struct {
	CategoryID string
	// Keyword ищется без учёта регистра в названии и описании.
	Keyword string
	Page    Page
}

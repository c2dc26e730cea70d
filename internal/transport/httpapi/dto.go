package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        userResponse `json:"user"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,pwd"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"max=512"`
	Phone    string `json:"phone" validate:"max=32"`
	// Role учитывается только для администратора.
	Role string `json:"role" validate:"omitempty,oneof=customer admin"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,pwd"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,pwd"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=customer admin"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Address:   u.Address,
		Phone:     u.Phone,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

type categoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toCategoryResponse(c domain.Category) categoryResponse {
	return categoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type productRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	ImageURL    string           `json:"imageUrl" validate:"omitempty,url"`
	CategoryID  string           `json:"categoryId"`
}

type productResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	CategoryID  string          `json:"categoryId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		CategoryID:  p.CategoryID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Количество не проверяется здесь: неположительные значения отклоняет менеджер заказов
// с указанием номера позиции.
type orderItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int32  `json:"quantity"`
}

type createOrderRequest struct {
	FullName        string             `json:"fullName" validate:"max=255"`
	PhoneNumber     string             `json:"phoneNumber" validate:"max=32"`
	ShippingAddress string             `json:"shippingAddress" validate:"max=512"`
	Items           []orderItemRequest `json:"items" validate:"dive"`
	// UserID учитывается только для администратора.
	UserID string `json:"userId"`
}

type orderItemResponse struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName"`
	Quantity          int32           `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	Deleted           bool            `json:"deleted,omitempty"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Status          string              `json:"status"`
	FullName        string              `json:"fullName"`
	PhoneNumber     string              `json:"phoneNumber"`
	ShippingAddress string              `json:"shippingAddress"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	Version         int64               `json:"version"`
	Deleted         bool                `json:"deleted,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Items           []orderItemResponse `json:"items"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:                it.ID,
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			Quantity:          it.Quantity,
			UnitPriceSnapshot: it.UnitPrice,
			TotalPrice:        it.LineTotal(),
			Deleted:           it.Deleted,
		})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		FullName:        o.FullName,
		PhoneNumber:     o.PhoneNumber,
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		Version:         o.Version,
		Deleted:         o.Deleted,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           items,
	}
}

// Количество проверяет сервис корзины, как и для заказа.
type cartItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int32  `json:"quantity"`
}

type checkoutRequest struct {
	FullName        string `json:"fullName" validate:"max=255"`
	PhoneNumber     string `json:"phoneNumber" validate:"max=32"`
	ShippingAddress string `json:"shippingAddress" validate:"max=512"`
}

type cartLineResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int32           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type cartResponse struct {
	UserID      string             `json:"userId"`
	CartItems   []cartLineResponse `json:"cartItems"`
	Unavailable []string           `json:"unavailableProductIds,omitempty"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
}

func toCartResponse(c domain.Cart) cartResponse {
	lines := make([]cartLineResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, cartLineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
			TotalPrice:  l.LineTotal,
		})
	}
	return cartResponse{
		UserID:      c.UserID,
		CartItems:   lines,
		Unavailable: c.Unavailable,
		TotalAmount: c.TotalAmount,
	}
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "sofa", Quantity: 2, UnitPrice: decimal.RequireFromString("100.50"), CreatedAt: now},
			{ID: "item-2", ProductID: "lamp", Quantity: 1, UnitPrice: decimal.RequireFromString("19.99"), CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalculateTotal()
	return order
}

func TestOrderRecalculateTotal(t *testing.T) {
	order := makeOrder()
	if !order.TotalAmount.Equal(decimal.RequireFromString("220.99")) {
		t.Fatalf("unexpected total: %s", order.TotalAmount)
	}

	order.Items[1].Deleted = true
	order.RecalculateTotal()
	if !order.TotalAmount.Equal(decimal.RequireFromString("201")) {
		t.Fatalf("deleted items must not count, got %s", order.TotalAmount)
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no user",
			mut: func(o *domain.Order) {
				o.UserID = ""
			},
		},
		{
			name: "unknown status",
			mut: func(o *domain.Order) {
				o.Status = "lost"
			},
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
				o.TotalAmount = decimal.Zero
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Quantity = 0
				o.RecalculateTotal()
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[0].UnitPrice = decimal.NewFromInt(-5)
				o.RecalculateTotal()
			},
		},
		{
			name: "total mismatch",
			mut: func(o *domain.Order) {
				o.TotalAmount = decimal.NewFromInt(999)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestOrderValidateInvariants_ReportsQuantityIndex(t *testing.T) {
	order := makeOrder()
	order.Items[1].Quantity = -1
	order.RecalculateTotal()

	var qtyErr *domain.InvalidQuantityError
	found := false
	for _, err := range order.ValidateInvariants() {
		if errors.As(err, &qtyErr) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected InvalidQuantityError")
	}
	if qtyErr.Index != 1 || qtyErr.ProductID != "lamp" {
		t.Fatalf("unexpected error context: %+v", qtyErr)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusProcessing, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusPending, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
		{domain.OrderStatusCancelled, domain.OrderStatusCancelled, true},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	if !domain.OrderStatusDelivered.IsTerminal() || !domain.OrderStatusCancelled.IsTerminal() {
		t.Fatal("delivered and cancelled must be terminal")
	}
	if domain.OrderStatusShipped.IsTerminal() {
		t.Fatal("shipped must not be terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if st, ok := domain.ParseOrderStatus("shipped"); !ok || st != domain.OrderStatusShipped {
		t.Fatalf("unexpected parse result: %q %v", st, ok)
	}
	if _, ok := domain.ParseOrderStatus("SHIPPED"); ok {
		t.Fatal("status parsing is case sensitive")
	}
}

func TestOrderUpdateIsEmpty(t *testing.T) {
	if !(domain.OrderUpdate{}).IsEmpty() {
		t.Fatal("zero update must be empty")
	}
	upd := domain.OrderUpdate{ShippingAddress: domain.Null[string]()}
	if upd.IsEmpty() {
		t.Fatal("explicit null counts as a present field")
	}
}

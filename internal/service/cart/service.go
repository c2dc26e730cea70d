// Package cart ведёт корзины покупателей и оформляет из них заказы.
package cart

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/reference"
)

// OrderCreator оформляет заказ из собранной команды.
type OrderCreator interface {
	CreateOrder(ctx context.Context, cmd domain.CreateOrderCommand) (domain.Order, error)
}

// Service изменяет корзины и превращает их в заказы.
type Service struct {
	store  domain.Store
	orders OrderCreator
	logger *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(store domain.Store, orders OrderCreator, options ...Option) *Service {
	s := &Service{
		store:  store,
		orders: orders,
		logger: log.WithField("component", "cart-service"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Get возвращает корзину с текущими ценами.
func (s *Service) Get(ctx context.Context, userID string) (domain.Cart, error) {
	items, err := s.store.Carts().List(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return price(ctx, s.store, userID, items)
}

// AddItem добавляет quantity единиц товара к уже лежащим в корзине.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int32) (domain.Cart, error) {
	return s.put(ctx, userID, productID, quantity, true)
}

// SetItem заменяет количество товара в корзине.
func (s *Service) SetItem(ctx context.Context, userID, productID string, quantity int32) (domain.Cart, error) {
	return s.put(ctx, userID, productID, quantity, false)
}

func (s *Service) put(ctx context.Context, userID, productID string, quantity int32, add bool) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, &domain.InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}

	var cart domain.Cart
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		resolver := reference.New(tx)
		if _, err := resolver.User(ctx, userID); err != nil {
			return err
		}
		if _, err := resolver.Product(ctx, productID); err != nil {
			return err
		}

		items, err := tx.Carts().List(ctx, userID)
		if err != nil {
			return err
		}
		total := int64(quantity)
		if add {
			for _, item := range items {
				if item.ProductID == productID {
					total += int64(item.Quantity)
				}
			}
		}
		if total > math.MaxInt32 {
			return &domain.ValidationError{Details: map[string]string{"quantity": "is too large"}}
		}
		if _, err := tx.Carts().Put(ctx, domain.CartItem{UserID: userID, ProductID: productID, Quantity: int32(total)}); err != nil {
			return err
		}

		items, err = tx.Carts().List(ctx, userID)
		if err != nil {
			return err
		}
		cart, err = price(ctx, tx, userID, items)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"user_id": userID, "product_id": productID}).Warn("failed to change cart")
		return domain.Cart{}, err
	}
	return cart, nil
}

// RemoveItem убирает товар из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	if err := s.store.Carts().Remove(ctx, userID, productID); err != nil {
		return domain.Cart{}, err
	}
	return s.Get(ctx, userID)
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.store.Carts().Clear(ctx, userID)
	return err
}

// Checkout оформляет заказ из корзины и очищает её. Если товар успел
// пропасть из каталога, заказ отклоняется и корзина остаётся как была.
func (s *Service) Checkout(ctx context.Context, cmd domain.CheckoutCommand) (domain.Order, error) {
	items, err := s.store.Carts().List(ctx, cmd.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}

	create := domain.CreateOrderCommand{
		UserID:          cmd.UserID,
		FullName:        cmd.FullName,
		PhoneNumber:     cmd.PhoneNumber,
		ShippingAddress: cmd.ShippingAddress,
		Items:           make([]domain.OrderItemRequest, 0, len(items)),
	}
	for _, item := range items {
		create.Items = append(create.Items, domain.OrderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := s.orders.CreateOrder(ctx, create)
	if err != nil {
		return domain.Order{}, err
	}

	entry := s.logger.WithFields(log.Fields{"user_id": cmd.UserID, "order_id": order.ID})
	// заказ уже оформлен: сбой очистки не отменяет его
	if _, err := s.store.Carts().Clear(ctx, cmd.UserID); err != nil {
		entry.WithError(err).Warn("order placed but cart was not cleared")
	} else {
		entry.WithField("items", len(items)).Info("cart checked out")
	}
	return order, nil
}

// price считает строки по текущему каталогу. Удалённые товары попадают в Unavailable.
func price(ctx context.Context, store domain.Store, userID string, items []domain.CartItem) (domain.Cart, error) {
	cart := domain.Cart{
		UserID:      userID,
		Lines:       make([]domain.CartLine, 0, len(items)),
		TotalAmount: decimal.Zero,
	}
	resolver := reference.New(store)
	for _, item := range items {
		product, err := resolver.Product(ctx, item.ProductID)
		if errors.Is(err, domain.ErrUnresolvedReference) {
			cart.Unavailable = append(cart.Unavailable, item.ProductID)
			continue
		}
		if err != nil {
			return domain.Cart{}, err
		}
		line := domain.CartLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			LineTotal:   product.Price.Mul(decimal.NewFromInt32(item.Quantity)),
		}
		cart.Lines = append(cart.Lines, line)
		cart.TotalAmount = cart.TotalAmount.Add(line.LineTotal)
	}
	return cart, nil
}

package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// orderRepository хранит заголовки заказов; позиции живут в orderItemRepository.
type orderRepository struct{ s *Store }

// Get возвращает заказ без позиций или NotFound, если его нет либо он удалён.
func (r orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var (
		order domain.Order
		ok    bool
	)
	r.s.view(func(d *dataset) {
		order, ok = d.orders[id]
	})
	if !ok || !r.s.visible(order.Deleted) {
		return domain.Order{}, domain.NotFound("order", id)
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (r orderRepository) ListByUser(_ context.Context, userID string, page domain.Page) ([]domain.Order, int, error) {
	var result []domain.Order
	r.s.view(func(d *dataset) {
		for _, order := range d.orders {
			if order.UserID != userID || !r.s.visible(order.Deleted) {
				continue
			}
			result = append(result, order)
		}
	})

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return paginate(result, page), len(result), nil
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepository) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	stampCreated(&order.CreatedAt, &order.UpdatedAt, r.s.now())

	header := order
	header.Items = nil

	err := r.s.mutate(func(d *dataset) error {
		if _, exists := d.orders[order.ID]; exists {
			return domain.ErrAlreadyExists
		}
		d.orders[order.ID] = header
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Update перезаписывает заказ, проверяя версию (optimistic locking).
func (r orderRepository) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	err := r.s.mutate(func(d *dataset) error {
		current, ok := d.orders[order.ID]
		if !ok || current.Deleted {
			return domain.NotFound("order", order.ID)
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}
		// Инкрементируем версию перед сохранением.
		order.Version++
		order.CreatedAt = current.CreatedAt
		order.UserID = current.UserID
		order.Deleted = false

		header := order
		header.Items = nil
		d.orders[order.ID] = header
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// SoftDelete помечает заказ удалённым. Позиции не трогает: каскад выполняет вызывающий.
func (r orderRepository) SoftDelete(_ context.Context, id string) error {
	now := r.s.now()
	return r.s.mutate(func(d *dataset) error {
		order, ok := d.orders[id]
		if !ok || order.Deleted {
			return domain.NotFound("order", id)
		}
		order.Deleted = true
		order.Version++
		order.UpdatedAt = now
		d.orders[id] = order
		return nil
	})
}

type orderItemRepository struct{ s *Store }

func (r orderItemRepository) Get(_ context.Context, id string) (domain.OrderItem, error) {
	var (
		item domain.OrderItem
		ok   bool
	)
	r.s.view(func(d *dataset) {
		item, ok = d.items[id]
	})
	if !ok || !r.s.visible(item.Deleted) {
		return domain.OrderItem{}, domain.NotFound("order item", id)
	}
	return item, nil
}

// ListByOrder возвращает позиции в порядке добавления.
func (r orderItemRepository) ListByOrder(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	result := make([]domain.OrderItem, 0)
	r.s.view(func(d *dataset) {
		for _, id := range d.orderItems[orderID] {
			item, ok := d.items[id]
			if ok && r.s.visible(item.Deleted) {
				result = append(result, item)
			}
		}
	})
	return result, nil
}

func (r orderItemRepository) Create(_ context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	stampCreated(&item.CreatedAt, &item.UpdatedAt, r.s.now())

	err := r.s.mutate(func(d *dataset) error {
		if _, exists := d.items[item.ID]; exists {
			return domain.ErrAlreadyExists
		}
		owner, ok := d.orders[item.OrderID]
		if !ok || owner.Deleted {
			return domain.NotFound("order", item.OrderID)
		}
		d.items[item.ID] = item
		d.orderItems[item.OrderID] = append(d.orderItems[item.OrderID], item.ID)
		return nil
	})
	if err != nil {
		return domain.OrderItem{}, err
	}
	return item, nil
}

func (r orderItemRepository) SoftDelete(_ context.Context, id string) error {
	now := r.s.now()
	return r.s.mutate(func(d *dataset) error {
		item, ok := d.items[id]
		if !ok || item.Deleted {
			return domain.NotFound("order item", id)
		}
		item.Deleted = true
		item.UpdatedAt = now
		d.items[id] = item
		return nil
	})
}

// SoftDeleteByOrder каскадно помечает удалёнными все активные позиции заказа.
func (r orderItemRepository) SoftDeleteByOrder(_ context.Context, orderID string) (int, error) {
	now := r.s.now()
	deleted := 0
	err := r.s.mutate(func(d *dataset) error {
		for _, id := range d.orderItems[orderID] {
			item := d.items[id]
			if item.Deleted {
				continue
			}
			item.Deleted = true
			item.UpdatedAt = now
			d.items[id] = item
			deleted++
		}
		return nil
	})
	return deleted, err
}

var (
	_ domain.OrderRepository     = orderRepository{}
	_ domain.OrderItemRepository = orderItemRepository{}
)

package memory

import (
	"context"
	"slices"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

type cartRepository struct{ s *Store }

func (r cartRepository) List(_ context.Context, userID string) ([]domain.CartItem, error) {
	var items []domain.CartItem
	r.s.view(func(d *dataset) {
		items = slices.Clone(d.carts[userID])
	})
	return items, nil
}

func (r cartRepository) Put(_ context.Context, item domain.CartItem) (domain.CartItem, error) {
	now := r.s.now()
	err := r.s.mutate(func(d *dataset) error {
		lines := d.carts[item.UserID]
		i := slices.IndexFunc(lines, func(c domain.CartItem) bool { return c.ProductID == item.ProductID })
		if i < 0 {
			item.CreatedAt, item.UpdatedAt = now, now
			d.carts[item.UserID] = append(slices.Clone(lines), item)
			return nil
		}
		item.CreatedAt, item.UpdatedAt = lines[i].CreatedAt, now
		updated := slices.Clone(lines)
		updated[i] = item
		d.carts[item.UserID] = updated
		return nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return item, nil
}

func (r cartRepository) Remove(_ context.Context, userID, productID string) error {
	return r.s.mutate(func(d *dataset) error {
		lines := d.carts[userID]
		i := slices.IndexFunc(lines, func(c domain.CartItem) bool { return c.ProductID == productID })
		if i < 0 {
			return domain.NotFound("cart item", productID)
		}
		d.carts[userID] = slices.Delete(slices.Clone(lines), i, i+1)
		return nil
	})
}

func (r cartRepository) Clear(_ context.Context, userID string) (int, error) {
	var n int
	err := r.s.mutate(func(d *dataset) error {
		n = len(d.carts[userID])
		delete(d.carts, userID)
		return nil
	})
	return n, err
}

var _ domain.CartRepository = cartRepository{}

package postgres

import (
	"context"
	"database/sql"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

type cartRepository struct {
	s *Store
}

func scanCartItem(rows *sql.Rows) (domain.CartItem, error) {
	var c domain.CartItem
	err := rows.Scan(&c.UserID, &c.ProductID, &c.Quantity, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r cartRepository) List(ctx context.Context, userID string) ([]domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.q.QueryContext(ctx, `
		SELECT user_id, product_id, quantity, created_at, updated_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, persistence("list cart items", err)
	}
	return collectRows(rows, "cart item row", scanCartItem)
}

// Put вставляет строку или заменяет количество. seq и created_at сохраняются,
// поэтому порядок строк не меняется.
func (r cartRepository) Put(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.s.now()
	err := r.s.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, item.UserID, item.ProductID, item.Quantity, now).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.CartItem{}, &domain.UnresolvedReferenceError{Entity: "product", ID: item.ProductID}
		}
		return domain.CartItem{}, persistence("upsert cart item", err)
	}
	return item, nil
}

func (r cartRepository) Remove(ctx context.Context, userID, productID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return persistence("delete cart item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("rows affected for cart item", err)
	}
	if affected == 0 {
		return domain.NotFound("cart item", productID)
	}
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, persistence("clear cart", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("rows affected for cart", err)
	}
	return int(affected), nil
}

var _ domain.CartRepository = cartRepository{}

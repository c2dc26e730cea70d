package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

const (
	orderColumns = `id, user_id, status, full_name, phone_number, shipping_address,
		total_amount, version, deleted, created_at, updated_at`
	orderItemColumns = `id, order_id, product_id, product_name, quantity, unit_price, deleted, created_at, updated_at`
)

type orderRepository struct {
	s *Store
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &status, &o.FullName, &o.PhoneNumber, &o.ShippingAddress,
		&o.TotalAmount, &o.Version, &o.Deleted, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Get возвращает заголовок заказа без позиций.
func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.s.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND `+r.s.live("deleted"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NotFound("order", id)
		}
		return domain.Order{}, persistence("select order", err)
	}
	return order, nil
}

func (r orderRepository) ListByUser(ctx context.Context, userID string, page domain.Page) ([]domain.Order, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	page = page.Normalize()

	var total int
	if err := r.s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND `+r.s.live("deleted"), userID).Scan(&total); err != nil {
		return nil, 0, persistence("count orders", err)
	}

	rows, err := r.s.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND `+r.s.live("deleted")+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, persistence("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, page.Size)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, persistence("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistence("iterate order rows", err)
	}
	return orders, total, nil
}

// Create сохраняет заголовок заказа. Позиции сохраняет OrderItemRepository.
func (r orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	stampCreated(&order.CreatedAt, &order.UpdatedAt, r.s.now())

	_, err := r.s.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, full_name, phone_number, shipping_address,
			total_amount, version, deleted, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,$9,$10)
	`,
		order.ID, order.UserID, string(order.Status), order.FullName, order.PhoneNumber, order.ShippingAddress,
		order.TotalAmount, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return domain.Order{}, domain.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.Order{}, &domain.UnresolvedReferenceError{Entity: "user", ID: order.UserID}
		}
		return domain.Order{}, persistence("insert order", err)
	}
	order.Deleted = false
	return order, nil
}

// Update применяет изменения, если версия совпадает, и увеличивает её.
func (r orderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.s.q.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $3,
		    full_name = $4,
		    phone_number = $5,
		    shipping_address = $6,
		    total_amount = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $1
		  AND version = $2
		  AND deleted = FALSE
		RETURNING user_id, version, created_at
	`,
		order.ID, order.Version, string(order.Status), order.FullName, order.PhoneNumber,
		order.ShippingAddress, order.TotalAmount, order.UpdatedAt,
	).Scan(&order.UserID, &order.Version, &order.CreatedAt)
	if err == nil {
		order.Deleted = false
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, persistence("update order", err)
	}

	exists, err := r.liveOrderExists(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	if !exists {
		return domain.Order{}, domain.NotFound("order", order.ID)
	}
	return domain.Order{}, domain.ErrOrderVersionConflict
}

// SoftDelete помечает заказ удалённым и увеличивает версию. Позиции не трогает.
func (r orderRepository) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.q.ExecContext(ctx, `
		UPDATE orders
		SET deleted = TRUE, version = version + 1, updated_at = $2
		WHERE id = $1 AND deleted = FALSE
	`, id, r.s.now())
	if err != nil {
		return persistence("soft delete order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("rows affected for order", err)
	}
	if affected == 0 {
		return domain.NotFound("order", id)
	}
	return nil
}

func (r orderRepository) liveOrderExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.s.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 AND deleted = FALSE`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, persistence("check order exists", err)
}

type orderItemRepository struct {
	s *Store
}

func scanOrderItem(row rowScanner) (domain.OrderItem, error) {
	var it domain.OrderItem
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice,
		&it.Deleted, &it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}

func (r orderItemRepository) Get(ctx context.Context, id string) (domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanOrderItem(r.s.q.QueryRowContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE id = $1 AND `+r.s.live("deleted"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderItem{}, domain.NotFound("order item", id)
		}
		return domain.OrderItem{}, persistence("select order item", err)
	}
	return item, nil
}

// ListByOrder возвращает позиции в порядке вставки (по seq).
func (r orderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.q.QueryContext(ctx, `
		SELECT `+orderItemColumns+`
		FROM order_items
		WHERE order_id = $1 AND `+r.s.live("deleted")+`
		ORDER BY seq ASC
	`, orderID)
	if err != nil {
		return nil, persistence("list order items", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, persistence("scan order item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate order items", err)
	}
	return items, nil
}

// Create сохраняет позицию; заказ-владелец должен существовать и не быть удалённым.
func (r orderItemRepository) Create(ctx context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	stampCreated(&item.CreatedAt, &item.UpdatedAt, r.s.now())

	res, err := r.s.q.ExecContext(ctx, `
		INSERT INTO order_items (
			id, order_id, product_id, product_name, quantity, unit_price, deleted, created_at, updated_at
		)
		SELECT $1, o.id, $3, $4, $5, $6, FALSE, $7, $8
		FROM orders o
		WHERE o.id = $2 AND o.deleted = FALSE
	`,
		item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return domain.OrderItem{}, domain.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.OrderItem{}, &domain.UnresolvedReferenceError{Entity: "product", ID: item.ProductID}
		}
		return domain.OrderItem{}, persistence("insert order item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.OrderItem{}, persistence("rows affected for order item", err)
	}
	if affected == 0 {
		return domain.OrderItem{}, domain.NotFound("order", item.OrderID)
	}
	item.Deleted = false
	return item, nil
}

func (r orderItemRepository) SoftDelete(ctx context.Context, id string) error {
	return softDelete(ctx, r.s, "order_items", "order item", id)
}

// SoftDeleteByOrder помечает удалёнными все активные позиции заказа одним запросом.
func (r orderItemRepository) SoftDeleteByOrder(ctx context.Context, orderID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.q.ExecContext(ctx, `
		UPDATE order_items
		SET deleted = TRUE, updated_at = $2
		WHERE order_id = $1 AND deleted = FALSE
	`, orderID, r.s.now())
	if err != nil {
		return 0, persistence("cascade soft delete order items", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("rows affected for order items", err)
	}
	return int(affected), nil
}

var (
	_ domain.OrderRepository     = orderRepository{}
	_ domain.OrderItemRepository = orderItemRepository{}
)

// Package orders управляет жизненным циклом агрегата заказа: оформлением,
// частичным обновлением и каскадным мягким удалением.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/metrics"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/merge"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/reference"
)

// CascadeMode определяет, как удаление заказа распространяется на позиции.
type CascadeMode string

const (
	// CascadeTransactional удаляет заказ и позиции в одной транзакции.
	CascadeTransactional CascadeMode = "transactional"
	// CascadeBestEffort помечает заказ, затем позиции по одной; сбои позиций
	// собираются в domain.CascadeError и не откатывают уже удалённое.
	CascadeBestEffort CascadeMode = "best_effort"
)

// ParseCascadeMode проверяет строковое значение режима.
func ParseCascadeMode(s string) (CascadeMode, error) {
	switch mode := CascadeMode(s); mode {
	case CascadeTransactional, CascadeBestEffort:
		return mode, nil
	case "":
		return CascadeTransactional, nil
	default:
		return "", fmt.Errorf("unknown cascade mode %q", s)
	}
}

// Manager — точка входа для операций над агрегатом заказа.
type Manager struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	cascade CascadeMode
	now     func() time.Time
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics подключает метрики операций.
func WithMetrics(om *metrics.OrderMetrics) Option {
	return func(m *Manager) {
		m.metrics = om
	}
}

// WithCascadeMode переключает режим каскадного удаления.
func WithCascadeMode(mode CascadeMode) Option {
	return func(m *Manager) {
		if mode != "" {
			m.cascade = mode
		}
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager конструирует менеджер поверх хранилища.
func NewManager(store domain.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		logger:  log.New().WithField("component", "order-manager"),
		cascade: CascadeTransactional,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateOrder оформляет заказ атомарно: все ссылки и количества проверяются до
// первой записи, а заказ и позиции сохраняются в одной транзакции.
func (m *Manager) CreateOrder(ctx context.Context, cmd domain.CreateOrderCommand) (domain.Order, error) {
	defer m.metrics.Begin(metrics.OperationCreate)()

	if len(cmd.Items) == 0 {
		return domain.Order{}, m.fail("CreateOrder", metrics.OperationCreate, "", domain.ErrItemsRequired)
	}

	var created domain.Order
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order, err := m.buildOrder(ctx, reference.New(tx), cmd)
		if err != nil {
			return err
		}

		saved, err := tx.Orders().Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		items := make([]domain.OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			item.OrderID = saved.ID
			stored, err := tx.OrderItems().Create(ctx, item)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			items = append(items, stored)
		}
		saved.Items = items

		if err := m.record(ctx, tx, saved, domain.EventOrderCreated, string(saved.Status)); err != nil {
			return err
		}
		created = saved
		return nil
	})
	if err != nil {
		return domain.Order{}, m.fail("CreateOrder", metrics.OperationCreate, "", err)
	}

	m.metrics.RecordOrderCreated()
	m.logger.WithFields(log.Fields{
		"operation": "CreateOrder",
		"order_id":  created.ID,
		"user_id":   created.UserID,
		"items":     len(created.Items),
	}).Info("order created")
	return created, nil
}

// buildOrder собирает агрегат в памяти (состояние Draft), ничего не записывая.
func (m *Manager) buildOrder(ctx context.Context, resolver *reference.Resolver, cmd domain.CreateOrderCommand) (domain.Order, error) {
	user, err := resolver.User(ctx, cmd.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUnresolvedReference) {
			return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrOrderCreationRejected, err)
		}
		return domain.Order{}, err
	}

	now := m.now()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		Status:          domain.OrderStatusPending,
		FullName:        firstNonEmpty(cmd.FullName, user.Name),
		PhoneNumber:     firstNonEmpty(cmd.PhoneNumber, user.Phone),
		ShippingAddress: firstNonEmpty(cmd.ShippingAddress, user.Address),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order.Items = make([]domain.OrderItem, 0, len(cmd.Items))
	for idx, req := range cmd.Items {
		if req.Quantity <= 0 {
			return domain.Order{}, &domain.InvalidQuantityError{Index: idx, ProductID: req.ProductID, Quantity: req.Quantity}
		}
		product, err := resolver.Product(ctx, req.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("items[%d]: %w", idx, err)
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    req.Quantity,
			UnitPrice:   product.Price,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	order.RecalculateTotal()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}
	return order, nil
}

// UpdateOrder применяет частичное обновление к скалярным полям заказа.
// Пустая команда возвращает заказ без изменений и без записи.
func (m *Manager) UpdateOrder(ctx context.Context, orderID string, upd domain.OrderUpdate) (domain.Order, error) {
	defer m.metrics.Begin(metrics.OperationUpdate)()

	var (
		result  domain.Order
		changed bool
	)
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		existing, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			result, err = withItems(ctx, tx, existing)
			return err
		}

		merged, err := merge.Order(existing, upd)
		if err != nil {
			return err
		}
		merged.UpdatedAt = m.now()

		saved, err := tx.Orders().Update(ctx, merged)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if saved, err = withItems(ctx, tx, saved); err != nil {
			return err
		}

		if saved.Status != existing.Status {
			if err := m.appendTimeline(ctx, tx, saved.ID, domain.EventOrderStatusChanged, string(saved.Status)); err != nil {
				return err
			}
		}
		if err := m.record(ctx, tx, saved, domain.EventOrderUpdated, "fields updated"); err != nil {
			return err
		}
		result, changed = saved, true
		return nil
	})
	if err != nil {
		return domain.Order{}, m.fail("UpdateOrder", metrics.OperationUpdate, orderID, err)
	}

	if changed {
		m.metrics.RecordOrderUpdated()
		m.logger.WithFields(log.Fields{
			"operation": "UpdateOrder",
			"order_id":  orderID,
			"status":    result.Status,
			"version":   result.Version,
		}).Info("order updated")
	}
	return result, nil
}

// DeleteOrder мягко удаляет заказ, затем все его активные позиции.
func (m *Manager) DeleteOrder(ctx context.Context, orderID string) error {
	defer m.metrics.Begin(metrics.OperationDelete)()

	var (
		deleted int
		err     error
	)
	switch m.cascade {
	case CascadeBestEffort:
		deleted, err = m.deleteBestEffort(ctx, orderID)
	default:
		deleted, err = m.deleteTransactional(ctx, orderID)
	}
	if err != nil {
		var cascadeErr *domain.CascadeError
		if errors.As(err, &cascadeErr) {
			m.metrics.RecordOrderDeleted(deleted)
			m.metrics.RecordCascadeItemFailures(len(cascadeErr.Failures))
		}
		return m.fail("DeleteOrder", metrics.OperationDelete, orderID, err)
	}

	m.metrics.RecordOrderDeleted(deleted)
	m.logger.WithFields(log.Fields{
		"operation": "DeleteOrder",
		"order_id":  orderID,
		"items":     deleted,
		"cascade":   m.cascade,
	}).Info("order deleted")
	return nil
}

func (m *Manager) deleteTransactional(ctx context.Context, orderID string) (int, error) {
	deleted := 0
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Orders().SoftDelete(ctx, orderID); err != nil {
			return fmt.Errorf("soft delete order: %w", err)
		}
		n, err := tx.OrderItems().SoftDeleteByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("cascade soft delete items: %w", err)
		}
		deleted = n

		order.Deleted = true
		return m.record(ctx, tx, order, domain.EventOrderDeleted, fmt.Sprintf("%d item(s) cascaded", n))
	})
	return deleted, err
}

// deleteBestEffort выполняет каскад в две фазы без общей транзакции.
func (m *Manager) deleteBestEffort(ctx context.Context, orderID string) (int, error) {
	order, err := m.store.Orders().Get(ctx, orderID)
	if err != nil {
		return 0, err
	}
	items, err := m.store.OrderItems().ListByOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("list order items: %w", err)
	}

	if err := m.store.Orders().SoftDelete(ctx, orderID); err != nil {
		return 0, fmt.Errorf("soft delete order: %w", err)
	}

	deleted := 0
	var failures []domain.ItemFailure
	for _, item := range items {
		if err := m.store.OrderItems().SoftDelete(ctx, item.ID); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"operation": "DeleteOrder",
				"order_id":  orderID,
				"item_id":   item.ID,
			}).Error("failed to soft delete order item")
			failures = append(failures, domain.ItemFailure{ItemID: item.ID, Err: err})
			continue
		}
		deleted++
	}

	order.Deleted = true
	reason := fmt.Sprintf("%d item(s) cascaded, %d failed", deleted, len(failures))
	recordErr := m.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		return m.record(ctx, tx, order, domain.EventOrderDeleted, reason)
	})

	if len(failures) > 0 {
		cascadeErr := &domain.CascadeError{OrderID: orderID, Failures: failures}
		if recordErr != nil {
			return deleted, errors.Join(cascadeErr, recordErr)
		}
		return deleted, cascadeErr
	}
	return deleted, recordErr
}

// GetOrder возвращает агрегат с активными позициями.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return m.load(ctx, m.store, orderID)
}

// GetOrderIncludingDeleted читает заказ в обход фильтра мягкого удаления (аудит).
func (m *Manager) GetOrderIncludingDeleted(ctx context.Context, orderID string) (domain.Order, error) {
	return m.load(ctx, m.store.Unscoped(), orderID)
}

// ListOrders возвращает страницу заказов пользователя вместе с позициями.
func (m *Manager) ListOrders(ctx context.Context, userID string, page domain.Page) ([]domain.Order, int, error) {
	list, total, err := m.store.Orders().ListByUser(ctx, userID, page)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", userID).Error("failed to list orders")
		return nil, 0, err
	}
	for i := range list {
		if list[i], err = withItems(ctx, m.store, list[i]); err != nil {
			return nil, 0, err
		}
	}
	return list, total, nil
}

// Timeline возвращает события заказа. Для удалённого заказа возвращает NotFound.
func (m *Manager) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := m.store.Orders().Get(ctx, orderID); err != nil {
		return nil, err
	}
	return m.store.Timeline().List(ctx, orderID)
}

func (m *Manager) load(ctx context.Context, store domain.Store, orderID string) (domain.Order, error) {
	order, err := store.Orders().Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.WithError(err).WithFields(log.Fields{
				"operation": "GetOrder",
				"order_id":  orderID,
			}).Error("failed to load order")
		}
		return domain.Order{}, err
	}
	return withItems(ctx, store, order)
}

func withItems(ctx context.Context, store domain.Store, order domain.Order) (domain.Order, error) {
	items, err := store.OrderItems().ListByOrder(ctx, order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("list order items: %w", err)
	}
	order.Items = items
	return order, nil
}

// record пишет событие в timeline и outbox в той же транзакции, что и агрегат.
func (m *Manager) record(ctx context.Context, tx domain.Store, order domain.Order, eventType, reason string) error {
	if err := m.appendTimeline(ctx, tx, order.ID, eventType, reason); err != nil {
		return err
	}

	payload, err := json.Marshal(domain.NewOrderEvent(eventType, order, m.now()))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	m.metrics.RecordOutboxEnqueued()
	return nil
}

func (m *Manager) appendTimeline(ctx context.Context, tx domain.Store, orderID, eventType, reason string) error {
	err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: m.now(),
	})
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	m.metrics.RecordTimelineEvent()
	return nil
}

// fail логирует и учитывает ошибку операции, возвращая её без изменений.
func (m *Manager) fail(operation, metricOp, orderID string, err error) error {
	reason := failureReason(err)
	m.metrics.RecordFailure(metricOp, reason)

	entry := m.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  orderID,
		"reason":    reason,
	})
	if reason == "persistence" || reason == "cascade" || reason == "internal" {
		entry.Error("order operation failed")
	} else {
		entry.Warn("order operation rejected")
	}
	return err
}

func failureReason(err error) string {
	var cascadeErr *domain.CascadeError
	switch {
	case errors.As(err, &cascadeErr):
		return "cascade"
	case errors.Is(err, domain.ErrOrderCreationRejected):
		return "creation_rejected"
	case errors.Is(err, domain.ErrUnresolvedReference):
		return "unresolved_reference"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrItemsRequired):
		return "items_required"
	case errors.Is(err, domain.ErrMergeRejected):
		return "merge_rejected"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrOrderVersionConflict):
		return "version_conflict"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/metrics"
	"github.com/vladislavdragonenkov/furniture-store/internal/storage/memory"
)

func loggerForTests() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

type fixture struct {
	store    *memory.Store
	manager  *Manager
	user     domain.User
	products []domain.Product
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	user, err := store.Users().Create(ctx, domain.User{
		Name:     "Anna Petrova",
		Username: "anna",
		Phone:    "+79990001122",
		Address:  "Moscow, Tverskaya 1",
		Role:     domain.RoleCustomer,
	})
	require.NoError(t, err)

	var products []domain.Product
	for _, p := range []struct {
		name  string
		price string
	}{{"Sofa", "100"}, {"Armchair", "45.50"}, {"Lamp", "12.99"}} {
		saved, err := store.Products().Create(ctx, domain.Product{Name: p.name, Price: decimal.RequireFromString(p.price)})
		require.NoError(t, err)
		products = append(products, saved)
	}

	base := []Option{
		WithLogger(loggerForTests()),
		WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
	}
	return fixture{
		store:    store,
		manager:  NewManager(store, append(base, opts...)...),
		user:     user,
		products: products,
	}
}

func (f fixture) createOrder(t *testing.T, quantities ...int32) domain.Order {
	t.Helper()
	cmd := domain.CreateOrderCommand{UserID: f.user.ID}
	for i, qty := range quantities {
		cmd.Items = append(cmd.Items, domain.OrderItemRequest{ProductID: f.products[i%len(f.products)].ID, Quantity: qty})
	}
	order, err := f.manager.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	return order
}

func TestCreateOrder_AssemblesAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.createOrder(t, 2, 1, 3)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, f.user.ID, order.UserID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "Anna Petrova", order.FullName, "contact defaults come from the user profile")
	assert.Equal(t, "Moscow, Tverskaya 1", order.ShippingAddress)
	require.Len(t, order.Items, 3)
	assert.Equal(t, "Sofa", order.Items[0].ProductName)
	// 2*100 + 1*45.50 + 3*12.99
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("284.47")), "total %s", order.TotalAmount)

	stored, err := f.manager.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 3)
	for i, item := range stored.Items {
		assert.Equal(t, order.Items[i].ID, item.ID)
		assert.Equal(t, order.ID, item.OrderID)
	}

	events, err := f.manager.Timeline(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].Type)

	pending, err := f.store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderCreated, pending[0].EventType)

	var payload domain.OrderEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, 3, payload.ItemCount)
}

func TestCreateOrder_RequiresItems(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CreateOrder(context.Background(), domain.CreateOrderCommand{UserID: f.user.ID})
	require.ErrorIs(t, err, domain.ErrItemsRequired)
}

func TestCreateOrder_UnresolvedUserRejectsCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Users().SoftDelete(ctx, f.user.ID))

	_, err := f.manager.CreateOrder(ctx, domain.CreateOrderCommand{
		UserID: f.user.ID,
		Items:  []domain.OrderItemRequest{{ProductID: f.products[0].ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrOrderCreationRejected)
	require.ErrorIs(t, err, domain.ErrUnresolvedReference)

	var refErr *domain.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "user", refErr.Entity)
}

func TestCreateOrder_DeletedProductPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Products().SoftDelete(ctx, f.products[1].ID))

	_, err := f.manager.CreateOrder(ctx, domain.CreateOrderCommand{
		UserID: f.user.ID,
		Items: []domain.OrderItemRequest{
			{ProductID: f.products[0].ID, Quantity: 1},
			{ProductID: f.products[1].ID, Quantity: 1},
		},
	})
	require.ErrorIs(t, err, domain.ErrUnresolvedReference)
	assert.False(t, errors.Is(err, domain.ErrOrderCreationRejected))

	var refErr *domain.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "product", refErr.Entity)
	assert.Equal(t, f.products[1].ID, refErr.ID)

	assertNothingPersisted(t, f)
}

func TestCreateOrder_InvalidQuantityIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.CreateOrder(ctx, domain.CreateOrderCommand{
		UserID: f.user.ID,
		Items: []domain.OrderItemRequest{
			{ProductID: f.products[0].ID, Quantity: 1},
			{ProductID: f.products[1].ID, Quantity: 0},
			{ProductID: f.products[2].ID, Quantity: 2},
		},
	})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	var qtyErr *domain.InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, 1, qtyErr.Index)
	assert.Equal(t, f.products[1].ID, qtyErr.ProductID)

	assertNothingPersisted(t, f)
}

func assertNothingPersisted(t *testing.T, f fixture) {
	t.Helper()
	ctx := context.Background()

	list, total, err := f.store.Unscoped().Orders().ListByUser(ctx, f.user.ID, domain.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	pending, err := f.store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateOrder_PriceSnapshotIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.createOrder(t, 1)
	require.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(100)))

	product := f.products[0]
	product.Price = decimal.NewFromInt(150)
	_, err := f.store.Products().Update(ctx, product)
	require.NoError(t, err)

	stored, err := f.manager.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.NewFromInt(100)), "snapshot changed to %s", stored.Items[0].UnitPrice)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(100)))
}

func TestUpdateOrder_EmptyUpdateLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1)

	updated, err := f.manager.UpdateOrder(ctx, order.ID, domain.OrderUpdate{})
	require.NoError(t, err)
	assert.Equal(t, order.Version, updated.Version)
	assert.Equal(t, order.UpdatedAt, updated.UpdatedAt)
	assert.Equal(t, order.Status, updated.Status)

	pending, err := f.store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "empty update must not emit events")
}

func TestUpdateOrder_StatusOnlyChangesStatus(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := created
	f := newFixture(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	order := f.createOrder(t, 2)

	clock = created.Add(time.Hour)
	updated, err := f.manager.UpdateOrder(ctx, order.ID, domain.OrderUpdate{Status: domain.Some(domain.OrderStatusCancelled)})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, order.UserID, updated.UserID)
	assert.Equal(t, order.FullName, updated.FullName)
	assert.Equal(t, order.ShippingAddress, updated.ShippingAddress)
	assert.True(t, order.TotalAmount.Equal(updated.TotalAmount))
	assert.Equal(t, created, updated.CreatedAt)
	assert.Equal(t, clock, updated.UpdatedAt)
	assert.Equal(t, order.Version+1, updated.Version)
	assert.False(t, updated.Deleted, "cancellation is not deletion")
	assert.Len(t, updated.Items, 1)

	events, err := f.manager.Timeline(ctx, order.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, domain.EventOrderStatusChanged)
	assert.Contains(t, types, domain.EventOrderUpdated)
}

func TestUpdateOrder_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1)

	_, err := f.manager.UpdateOrder(ctx, "missing", domain.OrderUpdate{FullName: domain.Some("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.manager.UpdateOrder(ctx, order.ID, domain.OrderUpdate{Status: domain.Some(domain.OrderStatusDelivered)})
	require.ErrorIs(t, err, domain.ErrMergeRejected)

	stored, err := f.manager.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status, "rejected merge must not persist")

	require.NoError(t, f.manager.DeleteOrder(ctx, order.ID))
	_, err = f.manager.UpdateOrder(ctx, order.ID, domain.OrderUpdate{FullName: domain.Some("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteOrder_CascadesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1, 2, 3)

	require.NoError(t, f.manager.DeleteOrder(ctx, order.ID))

	_, err := f.manager.GetOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	for _, item := range order.Items {
		_, err := f.store.OrderItems().Get(ctx, item.ID)
		require.ErrorIs(t, err, domain.ErrNotFound)
	}

	err = f.manager.DeleteOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	archived, err := f.manager.GetOrderIncludingDeleted(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, archived.Deleted)
	require.Len(t, archived.Items, 3)
	for _, item := range archived.Items {
		assert.True(t, item.Deleted)
	}

	_, err = f.manager.Timeline(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteOrder_BestEffortCascade(t *testing.T) {
	f := newFixture(t, WithCascadeMode(CascadeBestEffort))
	ctx := context.Background()
	order := f.createOrder(t, 1, 1, 1)

	require.NoError(t, f.manager.DeleteOrder(ctx, order.ID))

	archived, err := f.manager.GetOrderIncludingDeleted(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, archived.Deleted)
	for _, item := range archived.Items {
		assert.True(t, item.Deleted)
	}
}

// flakyItems отказывает в удалении выбранных позиций, остальное делегирует хранилищу.
type flakyItems struct {
	domain.OrderItemRepository
	mock.Mock
}

func (f *flakyItems) SoftDelete(ctx context.Context, id string) error {
	args := f.Called(ctx, id)
	if err := args.Error(0); err != nil {
		return err
	}
	return f.OrderItemRepository.SoftDelete(ctx, id)
}

type flakyStore struct {
	domain.Store
	items *flakyItems
}

func (s flakyStore) OrderItems() domain.OrderItemRepository { return s.items }

func TestDeleteOrder_BestEffortReportsItemFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1, 1, 1)

	items := &flakyItems{OrderItemRepository: f.store.OrderItems()}
	failure := &domain.PersistenceError{Op: "soft delete order item", Err: errors.New("lock timeout")}
	items.On("SoftDelete", mock.Anything, order.Items[1].ID).Return(failure).Once()
	items.On("SoftDelete", mock.Anything, mock.Anything).Return(nil)

	manager := NewManager(flakyStore{Store: f.store, items: items},
		WithLogger(loggerForTests()),
		WithCascadeMode(CascadeBestEffort),
	)

	err := manager.DeleteOrder(ctx, order.ID)
	var cascadeErr *domain.CascadeError
	require.ErrorAs(t, err, &cascadeErr)
	require.Len(t, cascadeErr.Failures, 1)
	assert.Equal(t, order.Items[1].ID, cascadeErr.Failures[0].ItemID)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	items.AssertNumberOfCalls(t, "SoftDelete", 3)

	// Заказ и успешно обработанные позиции остаются удалёнными.
	_, err = f.store.Orders().Get(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.OrderItems().Get(ctx, order.Items[0].ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.OrderItems().Get(ctx, order.Items[2].ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	survivor, err := f.store.OrderItems().Get(ctx, order.Items[1].ID)
	require.NoError(t, err)
	assert.False(t, survivor.Deleted)
}

// itemFaults решает, какие записи позиций завершатся ошибкой.
type itemFaults struct {
	mock.Mock
}

type faultyItems struct {
	domain.OrderItemRepository
	faults *itemFaults
}

func (r faultyItems) Create(ctx context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	if err := r.faults.MethodCalled("Create", item.ProductID).Error(0); err != nil {
		return domain.OrderItem{}, err
	}
	return r.OrderItemRepository.Create(ctx, item)
}

func (r faultyItems) SoftDeleteByOrder(ctx context.Context, orderID string) (int, error) {
	if err := r.faults.MethodCalled("SoftDeleteByOrder", orderID).Error(0); err != nil {
		return 0, err
	}
	return r.OrderItemRepository.SoftDeleteByOrder(ctx, orderID)
}

// faultyTxStore оборачивает и транзакционное представление, чтобы сбой
// случился уже после записи заголовка заказа.
type faultyTxStore struct {
	domain.Store
	faults *itemFaults
}

func (s faultyTxStore) OrderItems() domain.OrderItemRepository {
	return faultyItems{OrderItemRepository: s.Store.OrderItems(), faults: s.faults}
}

func (s faultyTxStore) Unscoped() domain.Store {
	return faultyTxStore{Store: s.Store.Unscoped(), faults: s.faults}
}

func (s faultyTxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		return fn(ctx, faultyTxStore{Store: tx, faults: s.faults})
	})
}

func TestCreateOrder_PersistenceFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	faults := &itemFaults{}
	failure := &domain.PersistenceError{Op: "insert order item", Err: errors.New("disk full")}
	faults.On("Create", f.products[1].ID).Return(failure).Once()
	faults.On("Create", mock.Anything).Return(nil)
	manager := NewManager(faultyTxStore{Store: f.store, faults: faults}, WithLogger(loggerForTests()))

	_, err := manager.CreateOrder(ctx, domain.CreateOrderCommand{
		UserID: f.user.ID,
		Items: []domain.OrderItemRequest{
			{ProductID: f.products[0].ID, Quantity: 1},
			{ProductID: f.products[1].ID, Quantity: 2},
			{ProductID: f.products[2].ID, Quantity: 3},
		},
	})
	require.ErrorIs(t, err, domain.ErrPersistence)
	faults.AssertNumberOfCalls(t, "Create", 2)

	orders, total, err := f.store.Unscoped().Orders().ListByUser(ctx, f.user.ID, domain.Page{})
	require.NoError(t, err)
	assert.Empty(t, orders, "order header must be rolled back")
	assert.Zero(t, total)

	stats, err := f.store.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount, "no event for a rolled back order")
}

func TestDeleteOrder_TransactionalCascadeFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1, 2)

	faults := &itemFaults{}
	failure := &domain.PersistenceError{Op: "cascade order items", Err: errors.New("deadlock detected")}
	faults.On("SoftDeleteByOrder", order.ID).Return(failure)
	manager := NewManager(faultyTxStore{Store: f.store, faults: faults}, WithLogger(loggerForTests()))

	err := manager.DeleteOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrPersistence)
	faults.AssertExpectations(t)

	stored, err := f.manager.GetOrder(ctx, order.ID)
	require.NoError(t, err, "order must stay live after a failed cascade")
	assert.False(t, stored.Deleted)
	require.Len(t, stored.Items, 2)
	for _, item := range stored.Items {
		assert.False(t, item.Deleted)
	}

	events, err := f.manager.Timeline(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "only the creation event is recorded")
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createOrder(t, 1)
	second := f.createOrder(t, 1, 1)

	require.NoError(t, f.manager.DeleteOrder(ctx, first.ID))

	list, total, err := f.manager.ListOrders(ctx, f.user.ID, domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Len(t, list[0].Items, 2)
}

func TestParseCascadeMode(t *testing.T) {
	mode, err := ParseCascadeMode("")
	require.NoError(t, err)
	assert.Equal(t, CascadeTransactional, mode)

	mode, err = ParseCascadeMode("best_effort")
	require.NoError(t, err)
	assert.Equal(t, CascadeBestEffort, mode)

	_, err = ParseCascadeMode("eventual")
	assert.Error(t, err)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.NotFound("order", "1"), "not_found"},
		{&domain.InvalidQuantityError{}, "invalid_quantity"},
		{&domain.MergeRejectedError{}, "merge_rejected"},
		{&domain.UnresolvedReferenceError{}, "unresolved_reference"},
		{&domain.PersistenceError{Op: "x", Err: errors.New("y")}, "persistence"},
		{&domain.CascadeError{}, "cascade"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err), "%v", tt.err)
	}
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

// dataset — полный снимок данных in-memory хранилища.
type dataset struct {
	users      map[string]domain.User
	categories map[string]domain.Category
	products   map[string]domain.Product
	// orders хранит заголовки без позиций.
	orders     map[string]domain.Order
	items      map[string]domain.OrderItem
	orderItems map[string][]string
	timeline   map[string][]domain.TimelineEvent
	outbox     map[string]outboxRecord
	outboxSeq  int64
	// carts хранит строки корзины по пользователю в порядке добавления.
	carts      map[string][]domain.CartItem
}

func newDataset() *dataset {
	return &dataset{
		users:      make(map[string]domain.User),
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		orders:     make(map[string]domain.Order),
		items:      make(map[string]domain.OrderItem),
		orderItems: make(map[string][]string),
		timeline:   make(map[string][]domain.TimelineEvent),
		outbox:     make(map[string]outboxRecord),
		carts:      make(map[string][]domain.CartItem),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		users:      make(map[string]domain.User, len(d.users)),
		categories: make(map[string]domain.Category, len(d.categories)),
		products:   make(map[string]domain.Product, len(d.products)),
		orders:     make(map[string]domain.Order, len(d.orders)),
		items:      make(map[string]domain.OrderItem, len(d.items)),
		orderItems: make(map[string][]string, len(d.orderItems)),
		timeline:   make(map[string][]domain.TimelineEvent, len(d.timeline)),
		outbox:     make(map[string]outboxRecord, len(d.outbox)),
		outboxSeq:  d.outboxSeq,
		carts:      make(map[string][]domain.CartItem, len(d.carts)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.orderItems {
		c.orderItems[k] = append([]string(nil), v...)
	}
	for k, v := range d.timeline {
		c.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	for k, v := range d.outbox {
		c.outbox[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = append([]domain.CartItem(nil), v...)
	}
	return c
}

// state разделяется всеми представлениями одного хранилища.
type state struct {
	// mu защищает указатель data от читателей.
	mu sync.RWMutex
	// writeMu сериализует писателей, включая транзакции целиком.
	writeMu sync.Mutex
	data    *dataset
}

// Store — in-memory реализация domain.Store для локальной разработки и тестов.
//
// Транзакция работает с копией данных и подменяет её целиком при коммите,
// поэтому читатели никогда не видят часть агрегата.
type Store struct {
	state    *state
	tx       *dataset
	unscoped bool
	now      func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		state: &state{data: newDataset()},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() domain.UserRepository           { return userRepository{s: s} }
func (s *Store) Categories() domain.CategoryRepository  { return categoryRepository{s: s} }
func (s *Store) Products() domain.ProductRepository     { return productRepository{s: s} }
func (s *Store) Orders() domain.OrderRepository         { return orderRepository{s: s} }
func (s *Store) OrderItems() domain.OrderItemRepository { return orderItemRepository{s: s} }
func (s *Store) Timeline() domain.TimelineRepository    { return timelineRepository{s: s} }
func (s *Store) Outbox() domain.OutboxRepository        { return outboxRepository{s: s} }
func (s *Store) Carts() domain.CartRepository           { return cartRepository{s: s} }

// Unscoped возвращает представление, в котором чтения видят мягко удалённые записи.
func (s *Store) Unscoped() domain.Store {
	clone := *s
	clone.unscoped = true
	return &clone
}

// Ping всегда успешен для in-memory хранилища.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithinTx выполняет fn на копии данных. Внутри fn нужно работать только через tx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state.writeMu.Lock()
	defer s.state.writeMu.Unlock()

	s.state.mu.RLock()
	draft := s.state.data.clone()
	s.state.mu.RUnlock()

	txStore := &Store{state: s.state, tx: draft, unscoped: s.unscoped, now: s.now}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state.mu.Lock()
	s.state.data = draft
	s.state.mu.Unlock()
	return nil
}

// visible — единственное место, где применяется фильтр мягкого удаления.
func (s *Store) visible(deleted bool) bool {
	return s.unscoped || !deleted
}

func (s *Store) view(fn func(d *dataset)) {
	if s.tx != nil {
		fn(s.tx)
		return
	}
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	fn(s.state.data)
}

func (s *Store) mutate(fn func(d *dataset) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.state.writeMu.Lock()
	defer s.state.writeMu.Unlock()
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return fn(s.state.data)
}

func stampCreated(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

var _ domain.Store = (*Store)(nil)

package domain

import (
	"context"
	"time"
)

// UserRepository описывает хранилище пользователей. Все чтения видят только неудалённые записи.
type UserRepository interface {
	Get(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	// List возвращает страницу пользователей и общее количество.
	List(ctx context.Context, page Page) ([]User, int, error)
	Search(ctx context.Context, filter UserFilter) ([]User, int, error)
	// Create присваивает ID, если он пустой. ErrUsernameTaken при занятом логине.
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
	// SoftDelete помечает запись удалённой; повторный вызов вернёт ErrNotFound.
	SoftDelete(ctx context.Context, id string) error
}

// CategoryRepository описывает хранилище категорий.
type CategoryRepository interface {
	Get(ctx context.Context, id string) (Category, error)
	List(ctx context.Context) ([]Category, error)
	Create(ctx context.Context, category Category) (Category, error)
	Update(ctx context.Context, category Category) (Category, error)
	SoftDelete(ctx context.Context, id string) error
}

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	SoftDelete(ctx context.Context, id string) error
}

// OrderRepository хранит заголовки заказов. Позиции лежат в OrderItemRepository.
type OrderRepository interface {
	// Get возвращает заказ без позиций.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает страницу заказов пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, page Page) ([]Order, int, error)
	Create(ctx context.Context, order Order) (Order, error)
	// Update применяет изменения с учётом optimistic locking: order.Version должна совпадать с текущей.
	Update(ctx context.Context, order Order) (Order, error)
	SoftDelete(ctx context.Context, id string) error
}

// OrderItemRepository хранит позиции заказов.
type OrderItemRepository interface {
	Get(ctx context.Context, id string) (OrderItem, error)
	// ListByOrder возвращает позиции в порядке добавления.
	ListByOrder(ctx context.Context, orderID string) ([]OrderItem, error)
	Create(ctx context.Context, item OrderItem) (OrderItem, error)
	SoftDelete(ctx context.Context, id string) error
	// SoftDeleteByOrder каскадно удаляет все активные позиции заказа и возвращает их количество.
	SoftDeleteByOrder(ctx context.Context, orderID string) (int, error)
}

// CartRepository хранит корзины. Строки удаляются физически: после
// оформления заказа их состояние хранится в позициях заказа.
type CartRepository interface {
	// List возвращает строки корзины в порядке добавления.
	List(ctx context.Context, userID string) ([]CartItem, error)
	// Put создаёт строку или заменяет количество в существующей.
	Put(ctx context.Context, item CartItem) (CartItem, error)
	// Remove удаляет строку; ErrNotFound, если её нет.
	Remove(ctx context.Context, userID, productID string) error
	// Clear очищает корзину и возвращает число удалённых строк.
	Clear(ctx context.Context, userID string) (int, error)
}

// Store объединяет репозитории одного хранилища и транзакционную границу.
type Store interface {
	Users() UserRepository
	Categories() CategoryRepository
	Products() ProductRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Timeline() TimelineRepository
	Outbox() OutboxRepository
	Carts() CartRepository

	// WithinTx выполняет fn атомарно: либо видны все записи fn, либо ни одной.
	// Вложенный вызов на транзакционном Store присоединяется к текущей транзакции.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	// Unscoped возвращает представление, в котором чтения видят и удалённые записи.
	Unscoped() Store
	Ping(ctx context.Context) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// PurgeSent удаляет до limit отправленных сообщений, отмеченных не позже before.
	PurgeSent(ctx context.Context, before time.Time, limit int) (int, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

const (
	connTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second
)

// poolConfig параметры пула database/sql.
type poolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

// Option настраивает пул соединений Store.
type Option func(*poolConfig)

// WithMaxConns ограничивает число открытых соединений; простаивающих держим столько же.
func WithMaxConns(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.maxOpen, c.maxIdle = n, n
		}
	}
}

// WithConnMaxLifetime задаёт время жизни соединения в пуле.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.maxLifetime = d
		}
	}
}

// querier общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store реализует domain.Store поверх PostgreSQL. Внутри WithinTx q указывает
// на транзакцию, и все репозитории пишут через неё.
type Store struct {
	db       *sql.DB
	q        querier
	tx       *sql.Tx
	unscoped bool
	now      func() time.Time
}

// Open подключается к PostgreSQL через драйвер pgx и ждёт ответа на ping.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	pool := poolConfig{maxOpen: 25, maxIdle: 25, maxLifetime: 30 * time.Minute, maxIdleTime: 5 * time.Minute}
	for _, option := range options {
		option(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, persistence("open postgres", err)
	}
	db.SetMaxOpenConns(pool.maxOpen)
	db.SetMaxIdleConns(pool.maxIdle)
	db.SetConnMaxLifetime(pool.maxLifetime)
	db.SetConnMaxIdleTime(pool.maxIdleTime)

	store := &Store{db: db, q: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB отдаёт пул для миграций и тестов.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()
	return persistence("ping postgres", s.db.PingContext(ctx))
}

// Close закрывает пул. Для транзакционного представления ничего не делает.
func (s *Store) Close() error {
	if s == nil || s.db == nil || s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Users() domain.UserRepository           { return userRepository{s: s} }
func (s *Store) Categories() domain.CategoryRepository  { return categoryRepository{s: s} }
func (s *Store) Products() domain.ProductRepository     { return productRepository{s: s} }
func (s *Store) Orders() domain.OrderRepository         { return orderRepository{s: s} }
func (s *Store) OrderItems() domain.OrderItemRepository { return orderItemRepository{s: s} }
func (s *Store) Timeline() domain.TimelineRepository    { return timelineRepository{s: s} }
func (s *Store) Outbox() domain.OutboxRepository        { return outboxRepository{s: s} }
func (s *Store) Carts() domain.CartRepository           { return cartRepository{s: s} }

// Unscoped возвращает представление, чтения которого не фильтруют удалённые записи.
func (s *Store) Unscoped() domain.Store {
	c := *s
	c.unscoped = true
	return &c
}

// WithinTx выполняет fn в транзакции. Вложенный вызов переиспользует открытую транзакцию.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	scoped := *s
	scoped.q, scoped.tx = tx, tx
	if err := fn(ctx, &scoped); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistence("commit tx", err)
	}
	committed = true
	return nil
}

// live возвращает условие фильтра мягкого удаления для колонки deleted.
func (s *Store) live(column string) string {
	if s.unscoped {
		return "TRUE"
	}
	return column + " = FALSE"
}

// persistence оборачивает ошибку драйвера в PersistenceError, не оборачивая её повторно.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pgCode(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	return pgErr, ok
}

// isUniqueViolation возвращает имя нарушенного уникального индекса.
func isUniqueViolation(err error) (string, bool) {
	if pgErr, ok := pgCode(err); ok && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgCode(err)
	return ok && pgErr.Code == codeForeignKeyViolation
}

// nullable превращает пустую строку в NULL для необязательных ссылок.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
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

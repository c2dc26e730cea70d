package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
)

func TestPoolOptions(t *testing.T) {
	t.Parallel()

	pool := poolConfig{maxOpen: 25, maxIdle: 25, maxLifetime: time.Hour}
	WithMaxConns(8)(&pool)
	WithConnMaxLifetime(10 * time.Minute)(&pool)
	assert.Equal(t, 8, pool.maxOpen)
	assert.Equal(t, 8, pool.maxIdle)
	assert.Equal(t, 10*time.Minute, pool.maxLifetime)

	WithMaxConns(0)(&pool)
	WithConnMaxLifetime(-time.Second)(&pool)
	assert.Equal(t, 8, pool.maxOpen, "non-positive values are ignored")
	assert.Equal(t, 10*time.Minute, pool.maxLifetime)
}

func TestPersistenceWrapsOnce(t *testing.T) {
	t.Parallel()

	assert.NoError(t, persistence("noop", nil))

	err := persistence("insert order", errors.New("conn reset"))
	assert.ErrorIs(t, err, domain.ErrPersistence)

	var pe *domain.PersistenceError
	assert.ErrorAs(t, persistence("outer", err), &pe)
	assert.Equal(t, "insert order", pe.Op)
}

func TestPgErrorClassification(t *testing.T) {
	t.Parallel()

	unique := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "users_username_live_idx"}
	name, ok := isUniqueViolation(unique)
	assert.True(t, ok)
	assert.Equal(t, "users_username_live_idx", name)
	assert.False(t, isForeignKeyViolation(unique))

	fk := &pgconn.PgError{Code: codeForeignKeyViolation}
	assert.True(t, isForeignKeyViolation(fk))
	_, ok = isUniqueViolation(errors.New("plain"))
	assert.False(t, ok)
}

func TestNullable(t *testing.T) {
	t.Parallel()

	assert.False(t, nullable("").Valid)
	assert.Equal(t, "cat-1", nullable("cat-1").String)
}

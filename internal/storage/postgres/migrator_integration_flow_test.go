package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireMigrationState(t *testing.T, store *Store, version int64, pending int) MigrationState {
	t.Helper()

	state, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, version, state.Version, "version")
	assert.Equal(t, int(version), state.Applied, "applied")
	assert.Len(t, state.Pending, pending, "pending")
	return state
}

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateDown(ctx, 100), "reset schema")
	requireMigrationState(t, store, 0, 4)
	// откат пустой схемы ничего не делает
	require.NoError(t, store.MigrateDown(ctx, 1))

	require.NoError(t, store.MigrateUp(ctx, 1))
	state := requireMigrationState(t, store, 1, 3)
	assert.Equal(t, []string{"0002_orders", "0003_timeline_outbox", "0004_carts"}, state.Pending)

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireMigrationState(t, store, 4, 0)
	require.NoError(t, store.MigrateUp(ctx, 0), "repeated up is a no-op")
	state = requireMigrationState(t, store, 4, 0)
	assert.Empty(t, state.Drifted)

	require.NoError(t, store.MigrateDown(ctx, 0), "zero steps rolls back one")
	requireMigrationState(t, store, 3, 1)
	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestMigrator_ReportsDrift(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err := store.DB().ExecContext(ctx, `UPDATE schema_migrations SET checksum = 'stale' WHERE version = 2`)
	require.NoError(t, err)
	t.Cleanup(func() {
		set, err := parseMigrations(migrationsFS)
		if err != nil {
			return
		}
		if m, ok := set.find(2); ok {
			_, _ = store.DB().ExecContext(context.Background(),
				`UPDATE schema_migrations SET checksum = $1 WHERE version = 2`, m.Checksum())
		}
	})

	state, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_orders"}, state.Drifted)
}

func TestMigrator_Guards(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, nilStore.MigrateUp(ctx, 0))
	assert.Error(t, nilStore.MigrateDown(ctx, 1))
	_, err := nilStore.MigrationStatus(ctx)
	assert.Error(t, err)

	store := &Store{}
	assert.Error(t, store.migrate(ctx, migrationDirection("sideways"), 0))
}

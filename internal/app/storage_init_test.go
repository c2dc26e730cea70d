package app

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/furniture-store/internal/storage/memory"
)

func TestInitStorage_Memory(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{StorageDriverMemory, ""} {
		st, err := initStorage(context.Background(), Config{StorageDriver: driver}, discardLogger())
		require.NoError(t, err, "driver %q", driver)
		assert.IsType(t, &memory.Store{}, st.store)
		assert.NoError(t, st.store.Ping(context.Background()))
		assert.NoError(t, st.close())
	}
}

func TestInitStorage_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		cfg     Config
		wantErr string
	}{
		"postgres without dsn": {
			cfg:     Config{StorageDriver: StorageDriverPostgres},
			wantErr: "FURNITURE_POSTGRES_DSN",
		},
		"unknown driver": {
			cfg:     Config{StorageDriver: "sqlite"},
			wantErr: "unsupported storage driver",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := initStorage(context.Background(), tc.cfg, discardLogger())
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestInitStorage_PostgresMigratesOnStart(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("FURNITURE_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("FURNITURE_POSTGRES_TEST_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresMaxConns = 4

	st, err := initStorage(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = st.close() })

	require.NoError(t, st.store.Ping(context.Background()))
	_, err = st.store.Categories().List(context.Background())
	assert.NoError(t, err, "schema must be migrated")
}

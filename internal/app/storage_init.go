package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/storage/memory"
	"github.com/vladislavdragonenkov/furniture-store/internal/storage/postgres"
)

// storage — выбранное хранилище и функция его закрытия.
type storage struct {
	store domain.Store
	close func() error
}

// initStorage открывает хранилище по cfg.StorageDriver и при необходимости применяет миграции.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (storage, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("используем in-memory хранилище")
		return storage{store: memory.NewStore(), close: func() error { return nil }}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return storage{}, errors.New("postgres storage requires FURNITURE_POSTGRES_DSN")
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return storage{}, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.MigrateUp(ctx, 0); err != nil {
				_ = pg.Close()
				return storage{}, fmt.Errorf("apply migrations: %w", err)
			}
			state, err := pg.MigrationStatus(ctx)
			if err != nil {
				_ = pg.Close()
				return storage{}, fmt.Errorf("migration status: %w", err)
			}
			logger.WithFields(log.Fields{
				"version": state.Version,
				"applied": state.Applied,
			}).Info("миграции postgres применены")
		}
		logger.Info("используем postgres хранилище")
		return storage{store: pg, close: pg.Close}, nil

	default:
		return storage{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/task-scheduler/config"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/task-scheduler/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/task-scheduler/internal/repository"
)

// Open connects the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := sqlite.NewDB(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
		return sqlite.NewStore(db), nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store opened", "driver", cfg.StoreDriver)
		return postgres.NewStore(pool), nil
	}

	return nil, fmt.Errorf("unknown store driver: %q", cfg.StoreDriver)
}

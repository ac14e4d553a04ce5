package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/DukeRupert/ngolink/internal/repository/memory"
	"github.com/DukeRupert/ngolink/internal/repository/mongo"
	"github.com/DukeRupert/ngolink/internal/repository/postgres"
)

// OpenStore connects the configured backend. Postgres is migrated before use.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (repository.Repository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case StorePostgres:
		db, err := postgres.Open(connectCtx, cfg.DatabaseUrl)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database ready", "driver", "postgres")
		return postgres.New(db), nil

	case StoreMongo:
		store, err := mongo.Open(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info("Database ready", "driver", "mongo", "database", cfg.MongoDatabase)
		return store, nil

	case StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Package persistence selects the activity store backend from configuration.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/config"
	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/persistence/memory"
	"example.com/studystreak/internal/persistence/postgres"
	"example.com/studystreak/internal/persistence/sqlite"
)

// Backend is an opened activity store plus the resources it owns.
type Backend struct {
	Store domain.ActivityStore
	// Pool is set only for the postgres backend; the outbox dispatcher shares it.
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects to the backend named by cfg.StorageBackend.
func Open(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Backend, error) {
	log := logger.WithField("storage_backend", cfg.StorageBackend)

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo := postgres.NewRepository(pool)
		if err := repo.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		log.Info("activity store ready")
		return &Backend{Store: repo, Pool: pool, close: pool.Close}, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		log.WithField("path", cfg.SQLitePath).Info("activity store ready")
		return &Backend{Store: store, close: func() { _ = store.Close() }}, nil

	case config.BackendMemory:
		log.Warn("using in-memory activity store, data is lost on restart")
		return &Backend{Store: memory.NewStore()}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

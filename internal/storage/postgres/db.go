package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/popfoundry/popserver/internal/config"
	"github.com/popfoundry/popserver/internal/storage"
)

// Repository is the Postgres implementation of storage.Repository. Both
// sub-repositories share the one connection pool; the pool is the only
// concurrency-sensitive shared resource in the ingest path and its maximum
// size is what bounds concurrent submissions.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Tenants() storage.TenantRepository {
	return &TenantRepository{pool: r.pool}
}

func (r *Repository) PlayEvents() storage.PlayEventRepository {
	return &PlayEventRepository{pool: r.pool}
}

// NewPool builds a connection pool from config, applying the connection
// cap that provides backpressure to concurrent request handlers.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = int32(cfg.MinConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

type TenantRepository struct {
	pool *pgxpool.Pool
}

type PlayEventRepository struct {
	pool *pgxpool.Pool
}

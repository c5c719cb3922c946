package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption adjusts the pool config before connecting.
type PoolOption func(*pgxpool.Config)

// WithSchema makes unqualified table names resolve in schema first, then
// public. The migrator and integration tests use it for isolated schemas.
func WithSchema(schema string) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema + ", public"
	}
}

// WithApplicationName labels connections in pg_stat_activity.
func WithApplicationName(name string) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.RuntimeParams["application_name"] = name
	}
}

// NewPool connects and pings. maxConns/minConns of zero keep pgx defaults.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32, opts ...PoolOption) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 && minConns <= cfg.MaxConns {
		cfg.MinConns = minConns
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "organlink"
	for _, o := range opts {
		o(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

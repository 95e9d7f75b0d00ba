package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/tableimport/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool builds a connection pool from the database settings. No
// connection is made until the first Acquire.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	return pool, nil
}

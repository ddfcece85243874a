package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/config"
)

// NewRemotePool creates the connection pool to the remote document store.
// An unreachable store is not an error: the device may boot offline and the
// pool connects lazily on the next sync.
func NewRemotePool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.RemoteDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("host", poolCfg.ConnConfig.Host).Msg("Remote store unreachable, continuing offline")
		return pool, nil
	}

	log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Int32("max_conns", cfg.MaxDBConns).
		Msg("Remote store connected")

	return pool, nil
}

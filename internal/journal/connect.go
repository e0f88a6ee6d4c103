package journal

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/swapflow/config"
	"github.com/coachpo/swapflow/internal/observability"
)

// Connect opens a pgx pool for the journal database, retrying with
// exponential backoff until the database answers a ping or the configured
// connect timeout elapses.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	attempt := 0
	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create pool: %w", err))
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			observability.Log().Debug("journal database not ready",
				observability.Field{Key: "attempt", Value: attempt},
				observability.Field{Key: "error", Value: err.Error()})
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return pool, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	return pool, nil
}

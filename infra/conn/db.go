package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mstgnz/paygate/infra/logger"
)

// ConnectConfig controls how hard Connect tries before giving up
type ConnectConfig struct {
	Attempts    int
	RetryDelay  time.Duration
	PingTimeout time.Duration
}

func (c ConnectConfig) withDefaults() ConnectConfig {
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	return c
}

// Connect opens a pgx pool for databaseURL and pings it, retrying while the
// database is still starting up.
func Connect(ctx context.Context, databaseURL string, cfg ConnectConfig) (*pgxpool.Pool, error) {
	cfg = cfg.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 2 * time.Minute

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				logger.Info("database connected", logger.LogContext{
					Fields: map[string]any{"attempt": attempt},
				})
				return pool, nil
			}
			pool.Close()
		}

		lastErr = err
		logger.Warn("database connection attempt failed", logger.LogContext{
			Fields: map[string]any{"attempt": attempt, "error": err.Error()},
		})

		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.Attempts, lastErr)
}

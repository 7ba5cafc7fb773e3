package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/mstgnz/paygate/infra/logger"
	goredis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "paygate:lock:"

// LockerConfig tunes the distributed idempotency lock
type LockerConfig struct {
	// Expiry must outlive the longest charge including failover
	Expiry time.Duration
	// Tries is how often acquisition is attempted before giving up
	Tries int
	// RetryDelay is the pause between attempts
	RetryDelay time.Duration
}

func (c LockerConfig) withDefaults() LockerConfig {
	if c.Expiry <= 0 {
		c.Expiry = 2 * time.Minute
	}
	if c.Tries <= 0 {
		c.Tries = 32
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	return c
}

// Locker holds a redsync mutex per idempotency key so that replicas sharing
// a Redis never charge the same key concurrently.
type Locker struct {
	rs     *redsync.Redsync
	config LockerConfig
}

// NewLocker creates a Locker on top of an existing go-redis client
func NewLocker(client goredis.UniversalClient, config LockerConfig) *Locker {
	return &Locker{
		rs:     redsync.New(redsyncredis.NewPool(client)),
		config: config.withDefaults(),
	}
}

// Lock acquires "paygate:lock:<key>". The returned func releases it and
// only logs when Redis refuses, the lock expires on its own anyway.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(lockKeyPrefix+key,
		redsync.WithExpiry(l.config.Expiry),
		redsync.WithTries(l.config.Tries),
		redsync.WithRetryDelay(l.config.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock idempotency key: %w", err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); err != nil || !ok {
			logger.Warn("failed to release idempotency lock", logger.LogContext{
				RequestID: key,
				Fields:    map[string]any{"error": fmt.Sprint(err)},
			})
		}
	}, nil
}

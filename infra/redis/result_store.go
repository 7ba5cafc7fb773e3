package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/paygate/provider"
	goredis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "paygate:result:"

// Commands is the subset of the go-redis client used by ResultStore
type Commands interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// ResultStore shares idempotency results between paygate instances
type ResultStore struct {
	cmd    Commands
	prefix string
}

// NewClient parses a redis:// URL and pings the server
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewResultStore stores results under "paygate:result:<idempotency key>"
func NewResultStore(cmd Commands) *ResultStore {
	return &ResultStore{cmd: cmd, prefix: defaultKeyPrefix}
}

// GetResult returns nil without error when the key is unknown or expired
func (s *ResultStore) GetResult(ctx context.Context, key string) (*provider.TransactionResult, error) {
	data, err := s.cmd.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	var result provider.TransactionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// PutResult stores the result for ttl
func (s *ResultStore) PutResult(ctx context.Context, key string, result provider.TransactionResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := s.cmd.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

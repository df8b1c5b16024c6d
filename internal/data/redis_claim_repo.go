package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
)

const defaultClaimPrefix = "cfs:jobwatch:claim:"

// RedisClaimRepo hands out short-lived exclusive claims so that only one
// jobwatch instance acts on a given terminal job.
type RedisClaimRepo struct {
	client redis.UniversalClient
	prefix string
}

var _ core.ClaimStore = (*RedisClaimRepo)(nil)

// NewRedisClaimRepo creates a claim store over client.
func NewRedisClaimRepo(client redis.UniversalClient) *RedisClaimRepo {
	return &RedisClaimRepo{client: client, prefix: defaultClaimPrefix}
}

// NewRedisClaimRepoWithPrefix creates a claim store with a custom key prefix.
func NewRedisClaimRepoWithPrefix(client redis.UniversalClient, prefix string) *RedisClaimRepo {
	return &RedisClaimRepo{client: client, prefix: prefix}
}

// Claim sets key if it is not already held. It reports whether this caller won.
func (r *RedisClaimRepo) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrClaimKeyRequired
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	// SET NX with TTL in one command; SETNX followed by EXPIRE can leak keys.
	status, err := r.client.SetArgs(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339Nano),
		redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis SET NX: %w", err)
	}
	return status == "OK", nil
}

// Release drops a claim early.
func (r *RedisClaimRepo) Release(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrClaimKeyRequired
	}
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Health checks the Redis connection.
func (r *RedisClaimRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyGuard tracks processed request keys in redis so a retried
// mutation (payment recording in particular) is applied at most once
// within the retention window.
type IdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyGuard constructs the guard. A zero ttl defaults to 24h.
func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{client: client, ttl: ttl}
}

// CheckAndSet ensures key uniqueness per module. The first caller wins;
// subsequent callers within the TTL receive ErrIdempotencyConflict.
func (g *IdempotencyGuard) CheckAndSet(ctx context.Context, module, key string) error {
	if g == nil || g.client == nil {
		return errors.New("idempotency guard not initialised")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	ok, err := g.client.SetNX(ctx, fmt.Sprintf("idem:%s:%s", module, key), "1", g.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release removes a key, typically used to roll back failed processing.
func (g *IdempotencyGuard) Release(ctx context.Context, module, key string) error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Del(ctx, fmt.Sprintf("idem:%s:%s", module, key)).Err()
}

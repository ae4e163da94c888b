package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gate "github.com/mark3labs/x402-gate"
)

// keyPrefix namespaces registry entries in a shared Redis.
const keyPrefix = "x402:nonce:"

// RedisRegistry is a Registry backed by Redis. SETNX gives the atomic
// check-and-mark the protocol requires across multiple server instances:
// two concurrent claims on the same key resolve to exactly one winner inside
// Redis, not in process memory. Entries carry a TTL of expiresAt-now, so
// Redis garbage-collects them no earlier than the authorization's own expiry.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry on an existing Redis client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// IsFresh implements Registry.
func (r *RedisRegistry) IsFresh(ctx context.Context, payer, network, nonce string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+Key(payer, network, nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("nonce registry read: %w", err)
	}
	return n == 0, nil
}

// Consume implements Registry.
func (r *RedisRegistry) Consume(ctx context.Context, payer, network, nonce string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// The authorization is already past validBefore; nothing to protect.
		return fmt.Errorf("%w: authorization already expired", gate.ErrExpiredAuthorization)
	}

	ok, err := r.client.SetNX(ctx, keyPrefix+Key(payer, network, nonce), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("nonce registry write: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s on %s", gate.ErrReplayedNonce, nonce, network)
	}
	return nil
}

// Package idempotency records which Stripe webhook events have already been
// processed so that redeliveries are acknowledged without re-running them.
package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "litmus:stripe_event:"

// DefaultTTL covers Stripe's retry window for a failing endpoint.
const DefaultTTL = 72 * time.Hour

// RedisEventLedger claims event ids with SET NX and a TTL.
type RedisEventLedger struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisEventLedger connects to redisURL and verifies the connection.
func NewRedisEventLedger(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisEventLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	opts.MaxRetries = 1

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisEventLedgerWithClient(client, ttl, logger), nil
}

// NewRedisEventLedgerWithClient wraps an existing client.
func NewRedisEventLedgerWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisEventLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEventLedger{client: client, ttl: ttl, logger: logger}
}

// Claim marks eventID as in progress. It returns false when the event was
// already claimed. On a Redis failure it returns true together with the
// error: processing goes ahead and the event-timestamp guard in the store
// absorbs any duplicate.
func (l *RedisEventLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// Release forgets eventID so that Stripe's next delivery is processed again.
func (l *RedisEventLedger) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, keyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (l *RedisEventLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (l *RedisEventLedger) Close() error {
	return l.client.Close()
}

// Package cache provides the rate-limit and response-cache mediator.
//
// Two implementations exist: a Redis-backed one and a no-op used when the
// backing store is unreachable. The router is unaware of which is active;
// every store failure degrades to "allowed" or "miss" so an infrastructure
// outage costs performance guarantees, never availability.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// RedisRateCache implements ports.RateCache on a Redis instance.
type RedisRateCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisRateCache(client *redis.Client, logger *slog.Logger) *RedisRateCache {
	return &RedisRateCache{client: client, logger: logger}
}

var _ ports.RateCache = (*RedisRateCache)(nil)

func counterKey(userID string, tool domain.ToolID) string {
	return fmt.Sprintf("ratelimit:%s:%s", userID, tool)
}

// CallCount returns the live counter for (user, tool). A missing key or a
// store error both read as zero.
func (r *RedisRateCache) CallCount(ctx context.Context, userID string, tool domain.ToolID) (int, error) {
	val, err := r.client.Get(ctx, counterKey(userID, tool)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read rate counter: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse rate counter %q: %w", val, err)
	}
	return n, nil
}

// IncrCall bumps the counter and resets its expiry to the window, so the
// quota is enforced over a rolling window anchored at the last call.
func (r *RedisRateCache) IncrCall(ctx context.Context, userID string, tool domain.ToolID, window time.Duration) error {
	key := counterKey(userID, tool)
	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("incr rate counter: %w", err)
	}
	if err := r.client.Expire(ctx, key, window).Err(); err != nil {
		return fmt.Errorf("expire rate counter: %w", err)
	}
	return nil
}

func (r *RedisRateCache) GetCached(ctx context.Context, key string) (map[string]any, bool, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten.
		r.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	return data, true, nil
}

func (r *RedisRateCache) SetCached(ctx context.Context, key string, data map[string]any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.client.SetEx(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Select pings Redis at addr and returns the backed mediator when it
// answers, the no-op mediator otherwise. Selection happens once at startup.
func Select(ctx context.Context, addr string, logger *slog.Logger) ports.RateCache {
	if addr == "" {
		logger.Info("no redis address configured, rate limiting and caching disabled")
		return NewNoopRateCache()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, rate limiting and caching disabled", "addr", addr, "error", err)
		return NewNoopRateCache()
	}
	logger.Info("redis mediator active", "addr", addr)
	return NewRedisRateCache(client, logger)
}

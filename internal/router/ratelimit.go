package router

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RateLimiter bounds ingestion volume per subject.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// RedisRateLimiter is a fixed-window counter in Redis: INCR per key, EXPIRE
// on the first hit of a window. Fails open on Redis errors so a cache outage
// never blocks ingestion.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a Redis backed rate limiter.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{
		client: client,
		prefix: "pulsefeed:ratelimit:",
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the key is within its window budget.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.limit <= 0 {
		return true
	}

	redisKey := rl.prefix + key
	counter, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		slog.Error("Rate limiter Redis error", "op", "incr", "error", err)
		return true
	}
	if counter == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			slog.Error("Rate limiter Redis error", "op", "expire", "error", err)
		}
	}
	return int(counter) <= rl.limit
}

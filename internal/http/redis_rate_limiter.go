package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "livelog:ratelimit:"
	redisCallTimeout  = 250 * time.Millisecond
	redisPingDeadline = 2 * time.Second
)

// redisRateLimiter shares fixed-window counters between server instances.
type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewRedisRateLimiter connects to Redis and returns a limiter that enforces
// one budget per key across every instance using the same database.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingDeadline)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client *redis.Client, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{
		client: client,
		logger: logger.With("component", "redis_rate_limiter"),
		prefix: redisKeyPrefix,
	}
}

// Allow counts the attempt and reads the window's remaining lifetime in one
// round trip. A counter without an expiry is the first hit of a window (or
// one whose expire was lost) and gets the window set. Every attempt counts,
// rejected or not. Redis errors fail open.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	redisKey := rl.prefix + key
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := rl.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Error("redis rate limiter error", "op", "incr", "key", redisKey, "error", err)
		return rateDecision{allowed: true}
	}

	count := int(incr.Val())
	ttl := pttl.Val()
	if ttl <= 0 {
		if err := rl.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			rl.logger.Error("redis rate limiter error", "op", "expire", "key", redisKey, "error", err)
		}
		ttl = window
	}
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}

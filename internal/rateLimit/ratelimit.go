package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow counts one hit against key. The window starts with the first hit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	if incr.Val() > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false, nil
	}
	return true, nil
}

package imagegen

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	DefaultHourlyLimit = 10
	rateWindow         = time.Hour
)

// RateLimiter is a fixed-window counter per account. It fails open.
type RateLimiter struct {
	cache cache.Cache
	limit int64
}

func NewRateLimiter(c cache.Cache, limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultHourlyLimit
	}
	return &RateLimiter{cache: c, limit: int64(limit)}
}

func rateKey(accountID uint) string {
	return fmt.Sprintf("ratelimit:generate:%d", accountID)
}

// Allow records one attempt and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, accountID uint) bool {
	if r == nil || r.cache == nil {
		return true
	}
	key := rateKey(accountID)
	n, err := r.cache.Incr(ctx, key)
	if err != nil {
		metrics.CacheDegraded.WithLabelValues("generate_ratelimit").Inc()
		log.Warnf("[ImageGen] Rate limit check skipped, cache unavailable: %v", err)
		return true
	}
	if n == 1 {
		if err := r.cache.Expire(ctx, key, rateWindow); err != nil {
			log.Warnf("[ImageGen] Could not set rate limit window: %v", err)
		}
	}
	return n <= r.limit
}

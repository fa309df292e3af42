package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound search calls. One limiter is shared by every
// caller in the process.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows one call per minInterval. A zero interval disables
// limiting.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait sleeps until the next call is allowed or ctx is done
func (l *RateLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

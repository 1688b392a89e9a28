package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls to an external provider so the pipeline stays
// inside its API quota. Limits can be adjusted at runtime when a provider
// reports a changed quota.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// the given burst capacity.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the limiter permits the next call or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits replaces the current rate and burst settings.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}

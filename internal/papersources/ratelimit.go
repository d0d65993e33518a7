package papersources

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every request a provider makes.
// It is safe for concurrent use.
//
// arXiv asks API clients to stay around three requests per second, so the
// arXiv provider uses NewRateLimiter(3, 3) unless configured otherwise.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts of up to burst requests.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may happen now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

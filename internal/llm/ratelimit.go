package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to an underlying completer.
type RateLimited struct {
	next    Completer
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket allowing requestsPerMinute
// calls per minute. A non-positive rate returns next unchanged.
func NewRateLimited(next Completer, requestsPerMinute int) Completer {
	if requestsPerMinute <= 0 || next == nil {
		return next
	}
	interval := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Complete waits for a token and forwards the request.
func (r *RateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, req)
}

// Unwrap returns the paced completer.
func (r *RateLimited) Unwrap() Completer {
	return r.next
}

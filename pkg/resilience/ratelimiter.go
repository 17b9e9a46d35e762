package resilience

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/aiist007/24life/pkg/fn"
)

// ErrRateLimited is returned by non-blocking calls when no token is left.
var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures a token bucket.
type LimiterOpts struct {
	// Rate is tokens per second. Zero or negative disables limiting.
	Rate float64
	// Burst is the bucket capacity; values below 1 become 1.
	Burst int
}

// Limiter is a token bucket shared by every caller.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter returns a Limiter starting with a full bucket.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	r := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		r = rate.Inf
	}
	return &Limiter{l: rate.NewLimiter(r, opts.Burst)}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool { return l.l.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error { return l.l.Wait(ctx) }

// Call runs f if a token is available, otherwise returns ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}

// LimiterStage waits for a token before running stage.
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}

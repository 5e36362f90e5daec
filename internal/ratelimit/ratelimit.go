// Package ratelimit paces outbound calls to remote services.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates a single outbound call. Wait blocks until the call may
// proceed or the context is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Interval spaces calls at least one interval apart. The first call
// passes immediately; later calls wait out the remainder of the
// interval. An interval of zero disables pacing.
type Interval struct {
	limiter *rate.Limiter
}

func NewInterval(d time.Duration) *Interval {
	if d <= 0 {
		return &Interval{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Interval{limiter: rate.NewLimiter(rate.Every(d), 1)}
}

func (i *Interval) Wait(ctx context.Context) error {
	return i.limiter.Wait(ctx)
}

// Noop never waits. Tests use it to run pipelines at full speed.
type Noop struct{}

func (Noop) Wait(ctx context.Context) error {
	return ctx.Err()
}

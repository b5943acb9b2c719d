package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// requestGate enforces the minimum spacing between outbound inference calls.
// Concurrent analyses on the same engine instance serialize here; the gate
// applies whether the call that follows succeeds or fails.
type requestGate struct {
	limiter *rate.Limiter
}

func newRequestGate(minInterval time.Duration) *requestGate {
	if minInterval <= 0 {
		return &requestGate{}
	}
	// Burst of 1: the first call passes immediately, every subsequent call
	// waits out the configured interval.
	return &requestGate{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the next call is permitted or ctx is cancelled.
func (g *requestGate) Wait(ctx context.Context) error {
	if g.limiter == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx)
}

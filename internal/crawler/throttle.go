package crawler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttle is a global fixed-interval gate shared by every worker of a run.
// Each Wait consumes one slot; slots are interval apart and the first one is
// available immediately
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a gate; interval <= 0 disables throttling
func NewThrottle(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next slot or until ctx is done
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	return nil
}

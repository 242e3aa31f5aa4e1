package solana

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle is the process-wide gate every outbound RPC call passes through.
// It combines a token bucket sized to the provider's quota with a cooldown
// deadline that any caller can extend after a rate-limit response.
type Throttle struct {
	limiter *rate.Limiter

	mu            sync.Mutex
	cooldownUntil time.Time
}

// NewThrottle allows requests per window, with a burst of the full window.
// A non-positive requests value disables the token bucket.
func NewThrottle(requests int, window time.Duration) *Throttle {
	limit := rate.Inf
	burst := 1
	if requests > 0 && window > 0 {
		limit = rate.Limit(float64(requests) / window.Seconds())
		burst = requests
	}
	return &Throttle{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until any active cooldown has elapsed and a token is available.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		remaining := time.Until(t.cooldownUntil)
		t.mu.Unlock()
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return t.limiter.Wait(ctx)
}

// Pause pushes the shared cooldown deadline at least d into the future.
func (t *Throttle) Pause(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if until := time.Now().Add(d); until.After(t.cooldownUntil) {
		t.cooldownUntil = until
	}
}

// CoolingDown reports whether a cooldown is currently in effect.
func (t *Throttle) CoolingDown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Now().Before(t.cooldownUntil)
}

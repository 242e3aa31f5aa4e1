package solana

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/mintsales/service/metrics"
	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultCooldown is how long every caller backs off after a rate-limit signal.
	DefaultCooldown = 11 * time.Second
	// DefaultCallTimeout bounds a single RPC round trip.
	DefaultCallTimeout = 30 * time.Second
	// DefaultPageLimit is the largest page getSignaturesForAddress will return.
	DefaultPageLimit = 1000
)

// Options tunes the RPC callers. Zero values fall back to the defaults above.
type Options struct {
	// Endpoint labels metrics (e.g. "mainnet" or the RPC host).
	Endpoint    string
	Cooldown    time.Duration
	CallTimeout time.Duration
	PageLimit   int
}

func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = "unknown"
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.PageLimit <= 0 {
		o.PageLimit = DefaultPageLimit
	}
	return o
}

// caller runs one RPC method through the throttle with a single cooldown retry.
type caller struct {
	throttle *Throttle
	opts     Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// call invokes fn under the per-call timeout. A 429 or a per-call timeout
// pauses the shared throttle and retries once; a second failure comes back as
// a *RateLimitError. Any other failure is returned as is, without retrying.
func (c *caller) call(ctx context.Context, method, key string, fn func(ctx context.Context) error) error {
	transient := false

	operation := func() error {
		waitStart := time.Now()
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if c.metrics != nil {
			c.metrics.RecordThrottleWait(time.Since(waitStart).Seconds())
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		start := time.Now()
		err := fn(callCtx)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.opts.Endpoint, duration)
		}

		switch {
		case err == nil:
			transient = false
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case isRateLimit(err):
			transient = true
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.opts.Endpoint)
			}
			return err
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
			transient = true
			return err
		default:
			transient = false
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		c.throttle.Pause(c.opts.Cooldown)
		reason := "timeout"
		if isRateLimit(err) {
			reason = "rate_limit"
		}
		c.logger.WarnContext(ctx, "rpc call throttled, cooling down before retry",
			"method", method,
			"key", key,
			"reason", reason,
			"cooldown_seconds", wait.Seconds(),
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, reason)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.Cooldown), 1),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if transient {
		return &RateLimitError{Cooldown: c.opts.Cooldown, Err: err}
	}
	return err
}

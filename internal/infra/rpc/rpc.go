// Package rpc bounds every call the oracle makes to its node.
//
// Each call category (marker read, log fetch, mint submission) has its own
// Policy: attempt count, exponential backoff and a per-attempt timeout. A
// Caller applies a policy around any function, optionally behind a shared
// rate limiter, and records metrics per category.
//
// # Quick Start
//
//	caller := rpc.NewCaller(rpc.Options{RateLimit: 10})
//	err := caller.Do(ctx, rpc.ReadPolicy, func(ctx context.Context) error {
//	    marker, err = reader.LastProcessedNonce(ctx)
//	    return err
//	})
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/vietddude/mint-oracle/internal/indexing/metrics"
)

// Options configures a Caller.
type Options struct {
	// RateLimit caps attempts per second across all categories. 0 disables it.
	RateLimit float64
	Logger    *slog.Logger
}

// Caller runs functions under a retry policy.
type Caller struct {
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewCaller creates a Caller.
func NewCaller(opts Options) *Caller {
	c := &Caller{log: opts.Logger}
	if c.log == nil {
		c.log = slog.Default()
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Do calls fn until it succeeds, returns a fatal error, the policy gives up,
// or ctx is done. Every attempt runs under its own policy timeout; an expired
// attempt is retried like any transport error.
func (c *Caller) Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		callCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		start := time.Now()
		err := fn(callCtx)
		cancel()

		metrics.RPCLatency.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
		metrics.RPCCallsTotal.WithLabelValues(p.Name).Inc()
		if err == nil {
			return nil
		}
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, ClassifyError(err).String()).Inc()

		if ctx.Err() != nil || ClassifyError(err) == ActionFatal {
			return err
		}
		c.log.Debug("RPC attempt failed, retrying",
			"policy", p.Name, "attempt", attempts, "max_attempts", p.MaxAttempts, "error", err)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%s failed after %d attempt(s): %w", p.Name, attempts, err)
}

package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"golang.org/x/sync/semaphore"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// RateLimitPolicy selects what Execute does when the upstream signals a rate limit.
type RateLimitPolicy int

const (
	// PolicyWait blocks for the advertised reset and retries in place.
	PolicyWait RateLimitPolicy = iota
	// PolicyYield returns the *RateLimitedError immediately so the caller can
	// serve a cached answer.
	PolicyYield
)

func (p RateLimitPolicy) String() string {
	if p == PolicyYield {
		return "yield"
	}
	return "wait"
}

// Attempt outcomes reported to RateLimitedConfig.OnAttempt.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransient   = "transient"
	OutcomeError       = "error"
)

type RateLimitedConfig struct {
	Name  string
	Retry RetryConfig
	// MaxRateLimitWait is the longest reset a PolicyWait caller blocks for.
	// Longer resets are returned to the caller as if it had yielded.
	MaxRateLimitWait time.Duration
	// MaxRateLimitWaits bounds how many resets one call sits through.
	MaxRateLimitWaits int
	// DefaultRetryAfter is assumed when a rate-limit signal carries no hint.
	DefaultRetryAfter time.Duration
	Logger            logging.Logger
	OnAttempt         func(op, outcome string)
}

// RateLimitedClient serializes upstream calls through a process-wide queue of
// degree one, retries transient failures with backoff and applies the
// caller's rate-limit policy. After a rate-limit signal every caller sees the
// same reset deadline until it passes, without touching the upstream.
type RateLimitedClient struct {
	cfg    RateLimitedConfig
	queue  *semaphore.Weighted
	logger logging.Logger

	mu           sync.Mutex
	blockedUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateLimitedClient(cfg RateLimitedConfig) *RateLimitedClient {
	if cfg.Name == "" {
		cfg.Name = "upstream"
	}
	cfg.Retry = normalizeRetryConfig(cfg.Retry)
	if cfg.MaxRateLimitWait <= 0 {
		cfg.MaxRateLimitWait = 15 * time.Minute
	}
	if cfg.MaxRateLimitWaits <= 0 {
		cfg.MaxRateLimitWaits = 1
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &RateLimitedClient{
		cfg:    cfg,
		queue:  semaphore.NewWeighted(1),
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// BlockedFor reports how long the upstream is known to be rate limited.
func (c *RateLimitedClient) BlockedFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.blockedUntil.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}

func (c *RateLimitedClient) block(d time.Duration) {
	until := c.now().Add(d)
	c.mu.Lock()
	if until.After(c.blockedUntil) {
		c.blockedUntil = until
	}
	c.mu.Unlock()
}

// Execute runs fn through c. Errors are one of: a *RateLimitedError (matches
// ErrRateLimited), ErrUpstreamUnavailable wrapping the last transient failure,
// the context error, or fn's own non-transient error unchanged. PolicyWait
// never sleeps past the ctx deadline.
func Execute[T any](ctx context.Context, c *RateLimitedClient, op string, policy RateLimitPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	waits := 0
	for {
		if wait := c.BlockedFor(); wait > 0 {
			rl := &RateLimitedError{Op: op, RetryAfter: wait}
			if policy == PolicyYield || wait > c.cfg.MaxRateLimitWait || waits >= c.cfg.MaxRateLimitWaits || !outlasts(ctx, wait) {
				return zero, rl
			}
			waits++
			c.logger.WithFields(logging.Fields{
				"client":      c.cfg.Name,
				"op":          op,
				"retry_after": wait.String(),
			}).Warn("Upstream rate limited, waiting for reset")
			if err := c.sleep(ctx, wait); err != nil {
				return zero, err
			}
		}

		val, err := attempt(ctx, c, op, fn)
		if err == nil {
			return val, nil
		}

		var rl *RateLimitedError
		if errors.As(err, &rl) {
			if rl.RetryAfter <= 0 {
				rl.RetryAfter = c.cfg.DefaultRetryAfter
			}
			c.block(rl.RetryAfter)
			c.logger.WithFields(logging.Fields{
				"client":      c.cfg.Name,
				"op":          op,
				"policy":      policy.String(),
				"retry_after": rl.RetryAfter.String(),
			}).Warn("Upstream signalled rate limit")
			if policy == PolicyYield || rl.RetryAfter > c.cfg.MaxRateLimitWait || waits >= c.cfg.MaxRateLimitWaits || !outlasts(ctx, rl.RetryAfter) {
				return zero, rl
			}
			continue
		}
		return zero, err
	}
}

func attempt[T any](ctx context.Context, c *RateLimitedClient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
		tries   int
	)
	policy := NewRetryPolicy[T](c.cfg.Retry, IsTransient)
	val, err := failsafe.With(policy).WithContext(ctx).Get(func() (T, error) {
		tries++
		if err := c.queue.Acquire(ctx, 1); err != nil {
			lastErr = err
			return zero, err
		}
		v, err := fn(ctx)
		c.queue.Release(1)

		lastErr = err
		c.observe(op, err)
		if err != nil && IsTransient(err) {
			c.logger.WithFields(logging.Fields{
				"client":  c.cfg.Name,
				"op":      op,
				"attempt": tries,
				"error":   err,
			}).Debug("Transient upstream failure")
		}
		return v, err
	})
	if err == nil {
		return val, nil
	}

	switch {
	case ctx.Err() != nil:
		return zero, ctx.Err()
	case lastErr == nil:
		return zero, err
	case errors.Is(lastErr, ErrRateLimited):
		return zero, lastErr
	case IsTransient(lastErr):
		return zero, fmt.Errorf("%w: %s after %d attempts: %v", ErrUpstreamUnavailable, op, tries, lastErr)
	default:
		return zero, lastErr
	}
}

func (c *RateLimitedClient) observe(op string, err error) {
	if c.cfg.OnAttempt == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrRateLimited):
		outcome = OutcomeRateLimited
	case IsTransient(err):
		outcome = OutcomeTransient
	default:
		outcome = OutcomeError
	}
	c.cfg.OnAttempt(op, outcome)
}

// outlasts reports whether ctx leaves room to sit through wait. A caller
// whose deadline falls inside the reset gets the rate limit back instead.
func outlasts(ctx context.Context, wait time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

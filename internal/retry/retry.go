// Package retry provides an explicit, injectable retry policy for
// external calls: bounded attempts, capped exponential backoff with
// jitter, and a retryable-error predicate.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RateLimitError reports an upstream rate limit with a server-provided
// wait hint. It is always retryable and the hint overrides the backoff
// curve.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// TransientError marks timeouts, 5xx responses and connection failures.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedError marks unparseable upstream responses (invalid JSON,
// wrong vector length). These often resolve on resend, so the default
// policy retries them like transients.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return "malformed response: " + e.Err.Error() }
func (e *MalformedError) Unwrap() error { return e.Err }

// Policy describes how a call is retried. Sleep is swappable so tests
// can run against a fake clock.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy retries transient, rate-limit and malformed-response
// errors up to five attempts with 0.5s..10s randomized backoff,
// matching the external-call taxonomy of the pipeline.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Retryable:   DefaultRetryable,
	}
}

// DefaultRetryable accepts transient, rate-limit and malformed errors.
func DefaultRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	var mf *MalformedError
	return errors.As(err, &rl) || errors.As(err, &tr) || errors.As(err, &mf)
}

// Do runs fn until it succeeds, exhausts attempts, or hits a
// non-retryable error. The last error is returned unwrapped so callers
// can still classify it.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleep(ctx, p.delay(attempt, err)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// delay computes the wait before the next attempt. A rate-limit hint
// takes precedence over the exponential curve.
func (p Policy) delay(attempt int, err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter + time.Duration(rand.Int63n(int64(300*time.Millisecond)))
	}

	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := base << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// Full jitter keeps concurrent retries from aligning.
	return time.Duration(rand.Int63n(int64(d)) + int64(base)/2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sfextract/internal/metrics"
)

// RetryPolicy bounds retries of transient remote failures.
//
// Zero values are given defaults by Normalize:
//   - InitialDelay: 5s
//   - MaxDelay:     80s
//   - MaxAttempts:  10
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxAttempts counts every attempt, the first one included.
	MaxAttempts int
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 5 * time.Second,
		MaxDelay:     80 * time.Second,
		MaxAttempts:  10,
	}
}

// Normalize fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) Normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// Delay returns the wait before retry number retry (0-based): the initial
// delay doubled retry times, clamped to MaxDelay.
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < retry; i++ {
		if d >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryExhaustedError is returned when every allowed attempt failed with a
// transient error. It wraps the last one.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("bulk: %s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

type temporary interface {
	Temporary() bool
}

// IsTransient reports whether err (or anything it wraps) declares itself
// temporary, e.g. rate limiting, timeouts, or a busy server.
func IsTransient(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

// notReadyError marks a job whose batches have not materialized yet.
type notReadyError struct {
	jobID   string
	batches int
}

func (e *notReadyError) Error() string {
	return fmt.Sprintf("bulk: job %s not fully batched yet (%d batches)", e.jobID, e.batches)
}

func (e *notReadyError) Temporary() bool { return true }

// retry runs fn under policy p. Non-transient errors are returned as-is;
// a cancelled ctx stops retrying immediately.
func retry(ctx context.Context, p RetryPolicy, op string, sleep func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt+1 >= p.MaxAttempts {
			break
		}
		metrics.RecordRetry(op)
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return &RetryExhaustedError{Op: op, Attempts: p.MaxAttempts, Err: lastErr}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

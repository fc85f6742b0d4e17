// Package retry runs an operation a bounded number of times with linear backoff.
package retry

import (
	"context"
	"time"

	"oidworker/pkg/logger"
)

// Policy configures a retried operation.
// Attempt n (1-based) that fails waits BaseDelay*n before attempt n+1.
type Policy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration

	// Retryable reports whether err is worth another attempt. Nil retries everything.
	// A per-attempt deadline inside fn is an ordinary failure; only the caller's ctx ends retries.
	Retryable func(err error) bool

	// OnFailure is called after every failed attempt, including the last one
	OnFailure func(attempt int, err error)

	// Sleep waits for d or until ctx is done. Defaults to a timer; tests swap it out.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the wait after the given failed attempt
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

func (p Policy) attempts() int {
	return max(1, p.MaxAttempts)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds or attempts run out, returning the last error unchanged
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	log := logger.Get()
	total := p.attempts()

	for attempt := 1; attempt <= total; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}

		if attempt >= total || ctx.Err() != nil || !p.retryable(err) {
			break
		}

		delay := p.Delay(attempt)
		log.Warnw("Operation failed, retrying",
			"op", p.Name,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)

		if err := p.sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Run is Do for operations without a result
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Package retry implements bounded retry with error classification. Callers
// decide per error whether to stop, retry with exponential backoff, or back
// off longer because the upstream signalled rate limiting.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Action tells the retry loop how to treat a failed attempt.
type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, exponential backoff
	After               // rate-limited, use the longer backoff
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration

	// OnRetry, if set, is invoked before each backoff sleep.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// Classify maps an error to the action the loop should take.
type Classify func(err error) Action

// Operation is the retried function.
type Operation[T any] func() (T, error)

// Do runs op until it succeeds, classify returns Stop, the attempt budget is
// spent, or ctx is cancelled. The backoff sleep is context-aware; a
// rate-limit classification resets the backoff to the configured longer
// value before resuming the exponential ramp.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		switch classify(err) {
		case Stop:
			return zero, &PermanentError{Err: err}
		case After:
			backoff = p.RateLimitBackoff
		}

		if attempt >= p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// PermanentError wraps an error classified as Stop so callers can tell
// budget exhaustion from a hard failure.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Package retry provides a pluggable retry policy for transient failures.
// The chain facade uses the linear policy (delay = base * attempt); the
// exponential policy exists so tests and the push-surface reconnect can
// substitute a different backoff shape.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prediction-scanner/internal/logging"
)

// Policy computes the delay before the next attempt
type Policy interface {
	// Delay returns the wait before retrying after the given 1-based attempt
	Delay(attempt int) time.Duration
	// MaxAttempts returns the total number of attempts allowed
	MaxAttempts() int
}

// LinearPolicy waits Base * attempt between attempts
type LinearPolicy struct {
	Base     time.Duration
	Attempts int
}

// Delay implements Policy
func (p LinearPolicy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.Base
}

// MaxAttempts implements Policy
func (p LinearPolicy) MaxAttempts() int {
	return p.Attempts
}

// ExponentialPolicy waits Base * Multiplier^(attempt-1), capped at Max
type ExponentialPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Attempts   int
}

// Delay implements Policy
func (p ExponentialPolicy) Delay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	return time.Duration(d)
}

// MaxAttempts implements Policy
func (p ExponentialPolicy) MaxAttempts() int {
	return p.Attempts
}

// Default returns the standard policy for chain RPC calls:
// three attempts with 2s, 4s waits between them.
func Default() Policy {
	return LinearPolicy{Base: 2 * time.Second, Attempts: 3}
}

// Func is an operation that can be retried
type Func func(ctx context.Context) error

// Do runs fn under the given policy, sleeping between attempts. It returns
// nil on the first success, the context error if cancelled mid-backoff, and
// the last error once attempts are exhausted.
func Do(ctx context.Context, policy Policy, fn Func) error {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts() {
			break
		}

		delay := policy.Delay(attempt)
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		}).Warn("operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", policy.MaxAttempts(), lastErr)
}

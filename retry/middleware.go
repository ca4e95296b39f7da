// Package retry provides the exponential backoff strategy used when
// storage contention interrupts message fan-out.
package retry

import (
	"math"
	"time"
)

// Strategy defines the retry behavior for fan-out attempts that failed
// on store contention (deadlocks, lock timeouts, uniqueness races).
//
// The retry schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (50ms base, 2.0 exponential, 2s max):
//
//	Attempt 1: 100ms
//	Attempt 2: 200ms
//	Attempt 3: 400ms
//	Attempt 4: 800ms
type Strategy struct {
	MaxAttempts     int           // Maximum attempts before the publish fails
	BaseDelay       time.Duration // Initial retry delay
	MaxDelay        time.Duration // Maximum retry delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default fan-out retry strategy: 5 attempts
// with 50ms→2s exponential backoff. Contention windows on fan-out are
// short, so the delays stay well under a second for early attempts.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     5,
		BaseDelay:       50 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the retry delay for a given attempt
// using exponential backoff.
// Formula: delay = min(BaseDelay * ExponentialBase^attemptNumber, MaxDelay)
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable checks if another attempt is allowed.
// Returns true if the attempt count is below the maximum attempts limit.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
// Jitter spreads concurrent retry attempts over time so a recovering
// issuer is not hit by every in-flight authorization at once.
type ExponentialBackoff struct {
	BaseDelay  time.Duration // Initial delay (e.g., 100ms)
	MaxDelay   time.Duration // Maximum delay (e.g., 10s)
	Multiplier float64       // Exponential multiplier (typically 2.0)
	Jitter     float64       // Jitter factor (0.0-1.0, typically 0.1 for ±10%)
}

// DefaultExponentialBackoff returns the defaults used for issuer
// forwarding retries
//
// Retry sequence with defaults (±10% jitter):
//   - Attempt 0: ~100ms
//   - Attempt 1: ~200ms
//   - Attempt 2: ~400ms
//   - Attempt 3: ~800ms
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// StatusPollBackoff returns backoff configuration for crypto invoice
// status-check retries, which tolerate longer waits
func StatusPollBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// NextDelay calculates the delay for the given attempt number (0-indexed)
//
// The delay is BaseDelay * (Multiplier ^ attempt) ± jitter, capped at
// MaxDelay.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))

	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	jitterAmount := delay * eb.Jitter
	jitter := (rand.Float64()*2 - 1) * jitterAmount

	finalDelay := time.Duration(delay + jitter)
	if finalDelay < 0 {
		finalDelay = eb.BaseDelay
	}

	return finalDelay
}

// FixedBackoff implements a simple fixed delay backoff
type FixedBackoff struct {
	Delay time.Duration
}

// NextDelay returns the fixed delay regardless of attempt number
func (fb *FixedBackoff) NextDelay(attempt int) time.Duration {
	return fb.Delay
}

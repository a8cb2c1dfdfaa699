package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy for a payment flow
//
// Hierarchy (outermost to innermost):
//
//	HTTP handler
//	  service layer (submit / status refresh)
//	    single outbound attempt (issuer or crypto gateway)
//
// Each layer must complete before its parent times out, so a hung
// external party surfaces as a bounded FAILED/ERROR instead of hanging
// the caller.
type TimeoutConfig struct {
	HTTPHandler   time.Duration // Overall request timeout
	Service       time.Duration // Full submit including retries
	SingleAttempt time.Duration // One outbound issuer/gateway call
	Poller        time.Duration // One poller sweep
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:   60 * time.Second,
		Service:       30 * time.Second,
		SingleAttempt: 3 * time.Second,
		Poller:        2 * time.Minute,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:   5 * time.Second,
		Service:       2 * time.Second,
		SingleAttempt: 200 * time.Millisecond,
		Poller:        1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// ServiceContext creates a context with timeout for a full service operation
func (tc *TimeoutConfig) ServiceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Service)
}

// AttemptContext creates a context for a single outbound attempt
func (tc *TimeoutConfig) AttemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.SingleAttempt)
}

// PollerContext creates a context for one poller sweep
func (tc *TimeoutConfig) PollerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Poller)
}

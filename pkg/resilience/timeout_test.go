package resilience

import (
	"context"
	"testing"
	"time"
)

func TestTimeoutConfig_Hierarchy(t *testing.T) {
	tc := DefaultTimeoutConfig()

	if tc.SingleAttempt >= tc.Service {
		t.Errorf("single attempt (%v) must fit inside service timeout (%v)", tc.SingleAttempt, tc.Service)
	}
	if tc.Service >= tc.HTTPHandler {
		t.Errorf("service timeout (%v) must fit inside handler timeout (%v)", tc.Service, tc.HTTPHandler)
	}
}

func TestTimeoutConfig_AttemptContext(t *testing.T) {
	tc := TestTimeoutConfig()

	ctx, cancel := tc.AttemptContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	remaining := time.Until(deadline)
	if remaining <= 0 || remaining > tc.SingleAttempt {
		t.Errorf("expected deadline within %v, got %v", tc.SingleAttempt, remaining)
	}
}

package timeutil

import "time"

// Now returns the current time in UTC.
// Always use this instead of time.Now() to ensure timezone consistency.
func Now() time.Time {
	return time.Now().UTC()
}

// Clock abstracts wall-clock access so invoice-expiry logic can be
// tested deterministically
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return Now()
}

// FixedClock returns a fixed instant, for tests
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.T
}

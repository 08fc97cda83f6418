// Package system provides the wall clock used to stamp completions.
package system

import "time"

// DefaultPrecision matches Postgres timestamptz resolution so a completion
// time reads back exactly as it was written.
const DefaultPrecision = time.Microsecond

// Clock implements tracker.Clock using time.Now.
type Clock struct {
	precision time.Duration
}

// New creates a Clock with DefaultPrecision.
func New() *Clock {
	return &Clock{precision: DefaultPrecision}
}

// WithPrecision creates a Clock that truncates to p. A non-positive p keeps
// full resolution.
func WithPrecision(p time.Duration) *Clock {
	return &Clock{precision: p}
}

// Now returns the current UTC time truncated to the clock precision.
func (c Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now
}

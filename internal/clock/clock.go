// Package clock provides the wall-clock abstraction used for run bookkeeping
// (start/finish timestamps, log entries). It is deliberately separate from
// internal/cursor, which tracks virtual backtest time: clock answers "what
// time is it right now", cursor answers "what second of the replay are we on".
package clock

import (
	"context"
	"time"
)

// Clock provides the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the real system clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T; useful for scenario fixtures that only need
// one timestamp repeated.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// ManualClock is advanced explicitly by tests so that wall-clock-adjacent
// fields (run start/finish, log timestamps) can be asserted on without
// sleeping.
type ManualClock struct {
	current time.Time
}

// NewManualClock creates a manual clock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{current: t}
}

func (c *ManualClock) Now() time.Time { return c.current }

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

// Set pins the clock to t.
func (c *ManualClock) Set(t time.Time) { c.current = t }

type clockKey struct{}

// WithClock attaches c to ctx.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// FromContext returns the clock attached to ctx, defaulting to SystemClock.
func FromContext(ctx context.Context) Clock {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok {
		return c
	}
	return SystemClock{}
}

// Now is a convenience wrapper around FromContext(ctx).Now().
func Now(ctx context.Context) time.Time {
	return FromContext(ctx).Now()
}

// Package cursor implements the integer virtual-time index the engine and
// every strategy read "now" from. It mirrors the Advance/Set shape of
// internal/clock's ManualClock, but walks an explicit, bounded range of
// seconds rather than an unbounded wall clock.
package cursor

import "github.com/quantrail/backtestcore/internal/retcode"

// Cursor is an immutable snapshot of {index, time} at a point in a session.
type Cursor struct {
	Index int
	Time  int64
}

// Clock tracks the current position within an ordered range of seconds and
// advances it monotonically. It is not safe for concurrent use; callers
// serialize access to it the same way they serialize engine state-mutating
// calls — between barrier checkpoints.
type Clock struct {
	rng     []int64
	current int
	stop    int64 // stop_time as a timestamp; only meaningful when stopSet
	stopSet bool
}

// New builds a Clock over rng, an ordered, non-empty sequence of second
// timestamps (the "range" of §3 — the sub-window actually iterated).
func New(rng []int64) *Clock {
	c := &Clock{rng: rng, current: 0}
	return c
}

// WithStopTime configures an early-cut termination time; Next refuses to
// advance past the tick whose time equals or exceeds stopTime.
func (c *Clock) WithStopTime(stopTime int64) *Clock {
	c.stop = stopTime
	c.stopSet = true
	return c
}

// Current returns the cursor's current position.
func (c *Clock) Current() Cursor {
	return Cursor{Index: c.current, Time: c.rng[c.current]}
}

// Len returns the number of seconds in the configured range.
func (c *Clock) Len() int { return len(c.rng) }

// AtEnd reports whether the cursor is on the last index of the range, or has
// reached the configured stop time.
func (c *Clock) AtEnd() bool {
	if c.current >= len(c.rng)-1 {
		return true
	}
	if c.stopSet && c.rng[c.current] >= c.stop {
		return true
	}
	return false
}

// Next advances the cursor by one step. It returns the new Cursor, or an
// error if the range is already exhausted or the stop time has been reached.
func (c *Clock) Next() (Cursor, error) {
	return c.FastForward(1)
}

// FastForward advances the cursor by n steps (n == 0 is a no-op). It fails
// with time-out-of-range if doing so would run past the end of the range or
// past the configured stop time.
func (c *Clock) FastForward(n int) (Cursor, error) {
	if n < 0 {
		return Cursor{}, retcode.NewEngineError(retcode.TimeOutOfRange, "fast_forward: negative step")
	}
	if n == 0 {
		return c.Current(), nil
	}
	target := c.current + n
	if target > len(c.rng)-1 {
		return Cursor{}, retcode.NewEngineError(retcode.TimeOutOfRange, "fast_forward: past end of range")
	}
	if c.stopSet && c.rng[target] >= c.stop && c.rng[c.current] < c.stop {
		// Allow the step that reaches the stop boundary (tracker still runs
		// for it), but never step past it.
		if c.rng[target-1] >= c.stop {
			return Cursor{}, retcode.NewEngineError(retcode.TimeOutOfRange, "fast_forward: past stop_time")
		}
		c.current = target
		return c.Current(), nil
	}
	if c.stopSet && c.rng[c.current] >= c.stop {
		return Cursor{}, retcode.NewEngineError(retcode.TimeOutOfRange, "fast_forward: stop_time already reached")
	}
	c.current = target
	return c.Current(), nil
}

// GoTo jumps the cursor forward to the tick whose time equals t. It never
// moves backward: t == current time is a no-op, t < current time fails.
func (c *Clock) GoTo(t int64) (Cursor, error) {
	cur := c.rng[c.current]
	if t == cur {
		return c.Current(), nil
	}
	if t < cur {
		return Cursor{}, retcode.NewEngineError(retcode.TimeOutOfRange, "go_to: requested time precedes current cursor")
	}
	for i := c.current; i < len(c.rng); i++ {
		if c.rng[i] == t {
			c.current = i
			return c.Current(), nil
		}
		if c.rng[i] > t {
			break
		}
	}
	return Cursor{}, retcode.NewEngineError(retcode.TimeOutOfRange, "go_to: time not found in range")
}

// Reset returns the cursor to index 0.
func (c *Clock) Reset() Cursor {
	c.current = 0
	return c.Current()
}

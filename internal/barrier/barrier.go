// Package barrier implements a re-armable N-party cyclic barrier (spec §4.6):
// the rendezvous primitive that keeps every strategy goroutine lock-stepped
// with the controller's virtual clock. No example repo in the retrieval pack
// implements anything resembling a cyclic barrier, so this is built fresh
// from sync.Mutex/sync.Cond — the pack's own low-level concurrency idiom
// (e.g. libs/replay/replay.go's mutex-guarded SimBroker) — per the spec's
// design note that an absent primitive should be reimplemented rather than
// worked around.
package barrier

import (
	"fmt"
	"sync"
)

// ErrBroken is returned by Wait when the barrier has been aborted, either by
// a direct Abort call or because a previous generation failed.
var ErrBroken = fmt.Errorf("barrier: broken")

// Barrier is a cyclic, re-armable rendezvous point for a fixed party count.
// Parties can be changed via SetParties whenever no party is waiting (it
// panics otherwise), so a controller can register strategies before fixing
// the barrier's width; Reset also sets it.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     int
	broken  bool
	onRearm func()
}

// New creates a Barrier with parties parties. parties may be 0, in which case
// SetParties must be called before the first Wait.
func New(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetParties fixes the party count. It must be called before any goroutine
// has called Wait — calling it after Wait has started for the current
// generation panics, since the barrier's trip condition would become
// ambiguous mid-generation.
func (b *Barrier) SetParties(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiting > 0 {
		panic("barrier: SetParties called while parties are already waiting")
	}
	b.parties = n
}

// OnRearm registers a callback the barrier's last-arriving party runs after
// the generation has advanced but before any other party is released, so it
// always executes from exactly one goroutine while every other party is
// still parked in Wait. The controller uses this to run tracker() and
// advance the cursor exactly once per tick.
func (b *Barrier) OnRearm(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRearm = fn
}

// Wait blocks until Parties() goroutines have called Wait for the current
// generation, then releases them all and re-arms for the next generation.
// Returns ErrBroken if the barrier is aborted while this call is waiting, or
// was already broken when it was called.
func (b *Barrier) Wait() error {
	b.mu.Lock()

	if b.broken {
		b.mu.Unlock()
		return ErrBroken
	}
	if b.parties <= 0 {
		b.mu.Unlock()
		return fmt.Errorf("barrier: Wait called with parties <= 0")
	}

	gen := b.gen
	b.waiting++

	if b.waiting == b.parties {
		// Re-arm before running onRearm: other parties are asleep in
		// cond.Wait below and only re-check their loop condition once
		// Broadcast is called, so advancing the generation here does not
		// race them awake early.
		b.waiting = 0
		b.gen++
		onRearm := b.onRearm
		b.mu.Unlock()

		if onRearm != nil {
			onRearm()
		}

		b.mu.Lock()
		b.cond.Broadcast()
		broken := b.broken
		b.mu.Unlock()
		if broken {
			return ErrBroken
		}
		return nil
	}

	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	broken := b.broken
	b.mu.Unlock()
	if broken {
		return ErrBroken
	}
	return nil
}

// Abort breaks the barrier, releasing every goroutine currently blocked in
// Wait (and every future Wait call) with ErrBroken.
func (b *Barrier) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = true
	b.cond.Broadcast()
}

// Reset clears a broken barrier back to a fresh, unbroken generation with
// the given party count. Used between independent sessions sharing a
// process (e.g. a walk-forward window sequence); never used mid-session.
func (b *Barrier) Reset(parties int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = false
	b.waiting = 0
	b.parties = parties
	b.gen++
}

// Parties returns the currently configured party count.
func (b *Barrier) Parties() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parties
}

// Broken reports whether the barrier has been aborted.
func (b *Barrier) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}

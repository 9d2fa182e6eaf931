// Package managers implements the keyed trade collections spec §4.3
// describes: a generic ticket-keyed container plus Positions/Orders/Deals
// specializations. Mutation only ever happens between barrier checkpoints
// (spec §5), so the container itself holds no lock — callers serialize
// access the same way the engine serializes every other state-mutating call.
package managers

// Container is a ticket-keyed collection preserving insertion order, mirroring
// the ordered-map semantics spec §4.3 requires (`values()`/`keys()`/`items()`
// all iterate in insertion order, not map iteration order).
type Container[T any] struct {
	order   []int64
	entries map[int64]T
}

// NewContainer creates an empty Container.
func NewContainer[T any]() *Container[T] {
	return &Container[T]{entries: make(map[int64]T)}
}

// Get returns the entry for ticket and whether it exists.
func (c *Container[T]) Get(ticket int64) (T, bool) {
	v, ok := c.entries[ticket]
	return v, ok
}

// Set inserts or replaces the entry for ticket, appending to insertion order
// only the first time ticket is seen.
func (c *Container[T]) Set(ticket int64, entry T) {
	if _, exists := c.entries[ticket]; !exists {
		c.order = append(c.order, ticket)
	}
	c.entries[ticket] = entry
}

// Update applies fn to the current entry for ticket and stores the result.
// It is a no-op (returns false) if ticket is not present.
func (c *Container[T]) Update(ticket int64, fn func(T) T) bool {
	v, ok := c.entries[ticket]
	if !ok {
		return false
	}
	c.entries[ticket] = fn(v)
	return true
}

// Delete removes ticket from the container entirely (including insertion
// order) — used only for corrective/test scenarios; the normal trade
// lifecycle keeps closed positions in history via PositionsManager.Close.
func (c *Container[T]) Delete(ticket int64) {
	if _, ok := c.entries[ticket]; !ok {
		return
	}
	delete(c.entries, ticket)
	for i, t := range c.order {
		if t == ticket {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Values returns every entry in insertion order.
func (c *Container[T]) Values() []T {
	out := make([]T, 0, len(c.order))
	for _, ticket := range c.order {
		out = append(out, c.entries[ticket])
	}
	return out
}

// Keys returns every ticket in insertion order.
func (c *Container[T]) Keys() []int64 {
	out := make([]int64, len(c.order))
	copy(out, c.order)
	return out
}

// Items returns every (ticket, entry) pair in insertion order.
func (c *Container[T]) Items() []struct {
	Ticket int64
	Entry  T
} {
	out := make([]struct {
		Ticket int64
		Entry  T
	}, 0, len(c.order))
	for _, ticket := range c.order {
		out = append(out, struct {
			Ticket int64
			Entry  T
		}{Ticket: ticket, Entry: c.entries[ticket]})
	}
	return out
}

// Contains reports whether ticket is present.
func (c *Container[T]) Contains(ticket int64) bool {
	_, ok := c.entries[ticket]
	return ok
}

// Len returns the number of entries.
func (c *Container[T]) Len() int { return len(c.entries) }

// ToDict returns a plain ticket→entry map (for snapshot serialization).
func (c *Container[T]) ToDict() map[int64]T {
	out := make(map[int64]T, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

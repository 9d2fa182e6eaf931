package managers

import "github.com/quantrail/backtestcore/internal/trade"

// PositionsManager owns the full position history plus the live
// open-positions index and margin map (spec §4.3, §3 Margin Map / Open
// Positions Index). The invariant `ticket ∈ open_positions ⟺ ticket ∈
// margin_map` is maintained entirely by Open/Close — there is no other
// mutation path.
type PositionsManager struct {
	*Container[*trade.Position]
	open   map[int64]struct{}
	margin map[int64]float64
}

// NewPositionsManager creates an empty PositionsManager.
func NewPositionsManager() *PositionsManager {
	return &PositionsManager{
		Container: NewContainer[*trade.Position](),
		open:      make(map[int64]struct{}),
		margin:    make(map[int64]float64),
	}
}

// Open inserts a new position, marks it live, and reserves its margin.
func (m *PositionsManager) Open(pos *trade.Position, margin float64) {
	m.Set(pos.Ticket, pos)
	m.open[pos.Ticket] = struct{}{}
	m.margin[pos.Ticket] = margin
}

// Close removes ticket from open_positions and margin_map. The position
// record itself remains in the container so history can be reconstructed.
func (m *PositionsManager) Close(ticket int64) {
	delete(m.open, ticket)
	delete(m.margin, ticket)
}

// IsOpen reports whether ticket is currently an open position.
func (m *PositionsManager) IsOpen(ticket int64) bool {
	_, ok := m.open[ticket]
	return ok
}

// OpenPositionsIter returns every currently open position, in insertion
// order of the underlying container (not map iteration order).
func (m *PositionsManager) OpenPositionsIter() []*trade.Position {
	var out []*trade.Position
	for _, p := range m.Values() {
		if m.IsOpen(p.Ticket) {
			out = append(out, p)
		}
	}
	return out
}

// PositionsTotal returns the number of currently open positions.
func (m *PositionsManager) PositionsTotal() int { return len(m.open) }

// Margin returns the sum of every reserved margin amount (the account
// ledger's margin invariant is `Account.margin == Σ margin_map.values`).
func (m *PositionsManager) Margin() float64 {
	var total float64
	for _, v := range m.margin {
		total += v
	}
	return total
}

// MarginFor returns the margin reserved for ticket (0 if not open).
func (m *PositionsManager) MarginFor(ticket int64) float64 {
	return m.margin[ticket]
}

// PositionFilter selects positions by any combination of ticket/symbol/group;
// a non-zero Ticket wins over Symbol/Group.
type PositionFilter struct {
	Ticket int64
	Symbol string
	Group  string
}

// PositionsGet filters open positions by the given criteria.
func (m *PositionsManager) PositionsGet(f PositionFilter) []*trade.Position {
	if f.Ticket != 0 {
		if p, ok := m.Get(f.Ticket); ok && m.IsOpen(f.Ticket) {
			return []*trade.Position{p}
		}
		return nil
	}
	var out []*trade.Position
	for _, p := range m.OpenPositionsIter() {
		if f.Symbol != "" && p.Symbol != f.Symbol {
			continue
		}
		if f.Group != "" && p.Group != f.Group {
			continue
		}
		out = append(out, p)
	}
	return out
}

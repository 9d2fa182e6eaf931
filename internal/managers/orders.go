package managers

import "github.com/quantrail/backtestcore/internal/trade"

// OrdersManager holds the full historical order record set (spec §4.3).
type OrdersManager struct {
	*Container[*trade.Order]
}

// NewOrdersManager creates an empty OrdersManager.
func NewOrdersManager() *OrdersManager {
	return &OrdersManager{Container: NewContainer[*trade.Order]()}
}

// GetRange returns every order with TimeSetup in [from, to].
func (m *OrdersManager) GetRange(from, to int64) []*trade.Order {
	var out []*trade.Order
	for _, o := range m.Values() {
		if o.TimeSetup >= from && o.TimeSetup <= to {
			out = append(out, o)
		}
	}
	return out
}

// HistoryTotal counts orders with TimeSetup in [from, to].
func (m *OrdersManager) HistoryTotal(from, to int64) int {
	return len(m.GetRange(from, to))
}

// DealsManager holds the full historical deal record set (spec §4.3).
type DealsManager struct {
	*Container[*trade.Deal]
}

// NewDealsManager creates an empty DealsManager.
func NewDealsManager() *DealsManager {
	return &DealsManager{Container: NewContainer[*trade.Deal]()}
}

// GetRange returns every deal with Time in [from, to].
func (m *DealsManager) GetRange(from, to int64) []*trade.Deal {
	var out []*trade.Deal
	for _, d := range m.Values() {
		if d.Time >= from && d.Time <= to {
			out = append(out, d)
		}
	}
	return out
}

// HistoryTotal counts deals with Time in [from, to].
func (m *DealsManager) HistoryTotal(from, to int64) int {
	return len(m.GetRange(from, to))
}

// ForPosition returns every deal tied to positionID, in insertion order.
func (m *DealsManager) ForPosition(positionID int64) []*trade.Deal {
	var out []*trade.Deal
	for _, d := range m.Values() {
		if d.PositionID == positionID {
			out = append(out, d)
		}
	}
	return out
}

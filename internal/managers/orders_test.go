package managers

import (
	"testing"

	"github.com/quantrail/backtestcore/internal/trade"
)

func TestOrdersManagerGetRange(t *testing.T) {
	m := NewOrdersManager()
	m.Set(1, &trade.Order{Ticket: 1, TimeSetup: 1000})
	m.Set(2, &trade.Order{Ticket: 2, TimeSetup: 2000})
	m.Set(3, &trade.Order{Ticket: 3, TimeSetup: 3000})

	got := m.GetRange(1500, 2500)
	if len(got) != 1 || got[0].Ticket != 2 {
		t.Errorf("GetRange(1500,2500) = %+v", got)
	}
	if m.HistoryTotal(0, 5000) != 3 {
		t.Errorf("HistoryTotal(0,5000) = %d, want 3", m.HistoryTotal(0, 5000))
	}
}

func TestDealsManagerForPosition(t *testing.T) {
	m := NewDealsManager()
	m.Set(1, &trade.Deal{Ticket: 1, PositionID: 100, Entry: trade.EntryIn, Time: 1000})
	m.Set(2, &trade.Deal{Ticket: 2, PositionID: 100, Entry: trade.EntryOut, Time: 2000})
	m.Set(3, &trade.Deal{Ticket: 3, PositionID: 200, Entry: trade.EntryIn, Time: 1500})

	deals := m.ForPosition(100)
	if len(deals) != 2 {
		t.Fatalf("ForPosition(100) returned %d deals, want 2", len(deals))
	}
	if deals[0].Entry != trade.EntryIn || deals[1].Entry != trade.EntryOut {
		t.Errorf("unexpected deal ordering/entries: %+v", deals)
	}
}

func TestDealsManagerGetRange(t *testing.T) {
	m := NewDealsManager()
	m.Set(1, &trade.Deal{Ticket: 1, Time: 1000})
	m.Set(2, &trade.Deal{Ticket: 2, Time: 5000})

	if got := m.GetRange(0, 2000); len(got) != 1 {
		t.Errorf("GetRange(0,2000) = %+v, want 1 deal", got)
	}
	if m.HistoryTotal(0, 10000) != 2 {
		t.Errorf("HistoryTotal(0,10000) = %d, want 2", m.HistoryTotal(0, 10000))
	}
}

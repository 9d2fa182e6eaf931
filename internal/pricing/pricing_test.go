package pricing

import (
	"errors"
	"testing"

	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/timeframe"
)

func TestReindexFillsEverySecond(t *testing.T) {
	ticks := []dataset.Tick{
		{Time: 1000, Bid: 1.1000, Ask: 1.1002},
		{Time: 1003, Bid: 1.1010, Ask: 1.1012},
	}
	f, err := Reindex(ticks, 1000, 1006)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	for _, tc := range []struct {
		t        int64
		wantBid  float64
	}{
		{1000, 1.1000},
		{1001, 1.1000}, // gap closed forward from 1000
		{1002, 1.1000},
		{1003, 1.1010},
		{1004, 1.1010},
		{1005, 1.1010},
	} {
		row, ok := f.At(tc.t)
		if !ok {
			t.Fatalf("At(%d): missing row", tc.t)
		}
		if row.Bid != tc.wantBid {
			t.Errorf("At(%d).Bid = %v, want %v", tc.t, row.Bid, tc.wantBid)
		}
	}
}

func TestReindexLeadingGapUsesFirstTick(t *testing.T) {
	ticks := []dataset.Tick{{Time: 1005, Bid: 1.2, Ask: 1.2002}}
	f, err := Reindex(ticks, 1000, 1006)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	row, ok := f.At(1000)
	if !ok || row.Bid != 1.2 {
		t.Errorf("At(1000) = %+v, ok=%v, want bid 1.2", row, ok)
	}
}

func TestReindexEmptyTicksFailsDataMissing(t *testing.T) {
	_, err := Reindex(nil, 1000, 1010)
	if !errors.Is(err, ErrDataMissing) {
		t.Fatalf("expected ErrDataMissing, got %v", err)
	}
}

func TestReindexUnsortedInputStillWorks(t *testing.T) {
	ticks := []dataset.Tick{
		{Time: 1002, Bid: 1.3, Ask: 1.3002},
		{Time: 1000, Bid: 1.1, Ask: 1.1002},
		{Time: 1001, Bid: 1.2, Ask: 1.2002},
	}
	f, err := Reindex(ticks, 1000, 1003)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	row, _ := f.At(1001)
	if row.Bid != 1.2 {
		t.Errorf("At(1001).Bid = %v, want 1.2", row.Bid)
	}
}

func TestBuildRatesAggregatesOHLC(t *testing.T) {
	ticks := []dataset.Tick{
		{Time: 0, Bid: 1.0000, Ask: 1.0002},
		{Time: 30, Bid: 1.0100, Ask: 1.0102},
		{Time: 59, Bid: 1.0050, Ask: 1.0052},
		{Time: 60, Bid: 1.0200, Ask: 1.0202},
	}
	f, err := Reindex(ticks, 0, 120)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	bars, err := BuildRates(f, timeframe.M1, 0, 120)
	if err != nil {
		t.Fatalf("BuildRates: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("BuildRates: got %d bars, want 2", len(bars))
	}
	first := bars[0]
	if first.Open != 1.0001 {
		t.Errorf("first bar Open = %v, want 1.0001", first.Open)
	}
	if first.High <= first.Low {
		t.Errorf("first bar High/Low suspicious: %+v", first)
	}
}

func TestBuildRatesNoDataFailsRatesMissing(t *testing.T) {
	ticks := []dataset.Tick{{Time: 0, Bid: 1.0, Ask: 1.0002}}
	f, err := Reindex(ticks, 0, 10)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	_, err = BuildRates(f, timeframe.M1, 1000, 1000)
	if !errors.Is(err, ErrRatesMissing) {
		t.Fatalf("expected ErrRatesMissing, got %v", err)
	}
}

// Package pricing implements the reindex-to-seconds algorithm (spec §4.1):
// turning a sparse, irregularly-timed tick stream into a dense one-row-per-
// second price frame so that every integer second in a backtest's range has
// a well-defined current bid/ask, and rolling that frame up into fixed-
// timeframe OHLC rate bars on demand.
package pricing

import (
	"fmt"
	"sort"

	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/timeframe"
)

// ErrDataMissing is returned when a symbol has no ticks within the
// requested span.
var ErrDataMissing = fmt.Errorf("data-missing")

// ErrRatesMissing is returned when a rate lookup requests a timeframe that
// has no bars built for it.
var ErrRatesMissing = fmt.Errorf("rates-missing")

// Price is one reindexed per-second bid/ask row.
type Price struct {
	Time int64
	Bid  float64
	Ask  float64
}

// Frame is the dense, one-row-per-second price series for a single symbol,
// covering every second in [start, end).
type Frame struct {
	start int64
	rows  map[int64]Price
}

// Reindex builds a Frame covering every integer second in [start, end) by
// assigning each second the raw tick nearest to or before it; a leading gap
// (before the first tick) is filled from the first tick forward.
// Returns ErrDataMissing if ticks is empty.
func Reindex(ticks []dataset.Tick, start, end int64) (*Frame, error) {
	if len(ticks) == 0 {
		return nil, ErrDataMissing
	}
	sorted := append([]dataset.Tick(nil), ticks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	rows := make(map[int64]Price, end-start)
	idx := 0
	var current dataset.Tick
	haveCurrent := false

	for t := start; t < end; t++ {
		for idx < len(sorted) && sorted[idx].Time <= t {
			current = sorted[idx]
			haveCurrent = true
			idx++
		}
		if !haveCurrent {
			// Before the first tick: nearest neighbor is the first tick itself.
			current = sorted[0]
		}
		rows[t] = Price{Time: t, Bid: current.Bid, Ask: current.Ask}
	}

	return &Frame{start: start, rows: rows}, nil
}

// At returns the price row for second t.
func (f *Frame) At(t int64) (Price, bool) {
	p, ok := f.rows[t]
	return p, ok
}

// Bar is one OHLC rate bar over a fixed-duration window.
type Bar struct {
	Time  int64 // window open time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// BuildRates rolls up a reindexed Frame into fixed-duration Bars for tf,
// using mid price ((bid+ask)/2) as the bar's sample value. Bars are bucketed
// by tf.Seconds()-aligned windows covering [start, end).
func BuildRates(f *Frame, tf timeframe.Timeframe, start, end int64) ([]Bar, error) {
	step := tf.Seconds()
	if step <= 0 {
		return nil, fmt.Errorf("%w: invalid timeframe", ErrRatesMissing)
	}

	var bars []Bar
	windowStart := alignDown(start, step)

	for t := windowStart; t < end; t += step {
		winEnd := t + step
		var bar Bar
		bar.Time = t
		seen := false
		for s := t; s < winEnd && s < end; s++ {
			if s < start {
				continue
			}
			row, ok := f.At(s)
			if !ok {
				continue
			}
			mid := (row.Bid + row.Ask) / 2
			if !seen {
				bar.Open = mid
				bar.High = mid
				bar.Low = mid
				seen = true
			}
			if mid > bar.High {
				bar.High = mid
			}
			if mid < bar.Low {
				bar.Low = mid
			}
			bar.Close = mid
		}
		if seen {
			bars = append(bars, bar)
		}
	}

	if len(bars) == 0 {
		return nil, ErrRatesMissing
	}
	return bars, nil
}

func alignDown(t, step int64) int64 {
	return (t / step) * step
}

// Package timeframe defines the closed set of bar durations the data store
// and rate frames operate on. Kept as an explicit integer enum rather than
// derived from strings at call sites, per the design note that unknown
// timeframes should be rejected at the API boundary.
package timeframe

import "fmt"

// Timeframe identifies a canonical OHLCV bar duration.
type Timeframe int

const (
	M1 Timeframe = iota
	M2
	M3
	M4
	M5
	M6
	M10
	M15
	M20
	M30
	H1
	H2
	H3
	H4
	H6
	H8
	D1
	W1
	MN1
)

var durations = map[Timeframe]int64{
	M1:  60,
	M2:  120,
	M3:  180,
	M4:  240,
	M5:  300,
	M6:  360,
	M10: 600,
	M15: 900,
	M20: 1200,
	M30: 1800,
	H1:  3600,
	H2:  7200,
	H3:  10800,
	H4:  14400,
	H6:  21600,
	H8:  28800,
	D1:  86400,
	W1:  604800,
	MN1: 2592000,
}

var names = map[Timeframe]string{
	M1: "M1", M2: "M2", M3: "M3", M4: "M4", M5: "M5", M6: "M6",
	M10: "M10", M15: "M15", M20: "M20", M30: "M30",
	H1: "H1", H2: "H2", H3: "H3", H4: "H4", H6: "H6", H8: "H8",
	D1: "D1", W1: "W1", MN1: "MN1",
}

// Seconds returns the canonical duration of tf in seconds. It panics if tf is
// not one of the declared constants — callers must validate with Parse or
// Valid at the API boundary first.
func (tf Timeframe) Seconds() int64 {
	d, ok := durations[tf]
	if !ok {
		panic(fmt.Sprintf("timeframe: unknown timeframe %d", int(tf)))
	}
	return d
}

// String returns the canonical name (e.g. "M1", "H4", "D1").
func (tf Timeframe) String() string {
	if n, ok := names[tf]; ok {
		return n
	}
	return fmt.Sprintf("Timeframe(%d)", int(tf))
}

// Valid reports whether tf is one of the declared canonical timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := durations[tf]
	return ok
}

// Parse resolves a canonical name (case-sensitive, e.g. "M1") to a Timeframe.
// Unknown names return an error rather than a zero-value timeframe, so a
// caller can never silently fall back to M1.
func Parse(name string) (Timeframe, error) {
	for tf, n := range names {
		if n == name {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("timeframe: unknown name %q", name)
}

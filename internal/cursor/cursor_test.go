package cursor

import (
	"errors"
	"testing"

	"github.com/quantrail/backtestcore/internal/retcode"
)

func testRange() []int64 {
	rng := make([]int64, 10)
	for i := range rng {
		rng[i] = int64(1000 + i)
	}
	return rng
}

func TestNextAdvancesMonotonically(t *testing.T) {
	c := New(testRange())
	first := c.Current()
	next, err := c.Next()
	if err != nil {
		t.Fatalf("Next() returned error: %v", err)
	}
	if next.Time <= first.Time {
		t.Errorf("expected time to strictly increase: %d -> %d", first.Time, next.Time)
	}
	if next.Index != first.Index+1 {
		t.Errorf("Index = %d, want %d", next.Index, first.Index+1)
	}
}

func TestNextFailsAtEndOfRange(t *testing.T) {
	rng := []int64{100, 200}
	c := New(rng)
	if _, err := c.Next(); err != nil {
		t.Fatalf("first Next() should succeed: %v", err)
	}
	if !c.AtEnd() {
		t.Fatal("expected AtEnd() after consuming the range")
	}
	if _, err := c.Next(); err == nil {
		t.Fatal("expected time-out-of-range error at end of range")
	}
}

func TestGoToNoOpWhenEqualToCurrent(t *testing.T) {
	c := New(testRange())
	cur := c.Current()
	got, err := c.GoTo(cur.Time)
	if err != nil {
		t.Fatalf("GoTo(current) returned error: %v", err)
	}
	if got != cur {
		t.Errorf("GoTo(current) = %+v, want %+v", got, cur)
	}
}

func TestGoToFailsWhenBackward(t *testing.T) {
	c := New(testRange())
	c.FastForward(5)
	_, err := c.GoTo(1000) // earlier than current
	if err == nil {
		t.Fatal("expected time-out-of-range error for backward GoTo")
	}
	var engErr *retcode.EngineError
	if !errors.As(err, &engErr) || engErr.Code != retcode.TimeOutOfRange {
		t.Errorf("expected TimeOutOfRange engine error, got %v", err)
	}
}

func TestFastForwardZeroIsNoOp(t *testing.T) {
	c := New(testRange())
	before := c.Current()
	after, err := c.FastForward(0)
	if err != nil {
		t.Fatalf("FastForward(0) returned error: %v", err)
	}
	if after != before {
		t.Errorf("FastForward(0) changed cursor: %+v -> %+v", before, after)
	}
}

func TestResetReturnsToStart(t *testing.T) {
	c := New(testRange())
	c.FastForward(5)
	got := c.Reset()
	if got.Index != 0 {
		t.Errorf("Reset() index = %d, want 0", got.Index)
	}
}

func TestStopTimeHaltsAdvance(t *testing.T) {
	rng := testRange()
	c := New(rng).WithStopTime(rng[3])
	for i := 0; i < 3; i++ {
		if _, err := c.Next(); err != nil {
			t.Fatalf("Next() %d returned error: %v", i, err)
		}
	}
	if !c.AtEnd() {
		t.Fatal("expected AtEnd() once stop_time tick is reached")
	}
	if _, err := c.Next(); err == nil {
		t.Fatal("expected error advancing past stop_time")
	}
}

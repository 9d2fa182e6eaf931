package walkforward

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantrail/backtestcore/internal/barrier"
	"github.com/quantrail/backtestcore/internal/controller"
	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/symbol"
)

func idleStrategy() controller.Strategy {
	return func(ctx context.Context, eng controller.StrategyEngine, b *barrier.Barrier) error {
		for {
			if err := b.Wait(); err != nil {
				if err == barrier.ErrBroken {
					return nil
				}
				return err
			}
		}
	}
}

// registerFixture writes a flat tick series covering [0, span) and
// registers it with a fresh Registry rooted at t.TempDir().
func registerFixture(t *testing.T, span int64) (*dataset.Registry, dataset.Dataset) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "eurusd.csv")

	f, err := os.Create(csvPath)
	if err != nil {
		t.Fatalf("create tick csv: %v", err)
	}
	f.WriteString("time,bid,ask\n")
	for ts := int64(0); ts < span; ts++ {
		f.WriteString(itoa(ts) + ",1.10000,1.10020\n")
	}
	f.Close()

	reg, err := dataset.Open(filepath.Join(dir, "catalog"))
	if err != nil {
		t.Fatalf("dataset.Open: %v", err)
	}
	ds, err := reg.Register(dataset.Dataset{Name: "eurusd-fixture", Symbol: "EURUSD", FilePath: csvPath})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg, ds
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func testCatalog() *symbol.Catalog {
	return symbol.NewCatalog(symbol.Info{
		Name:         "EURUSD",
		ContractSize: 100_000,
		VolumeMin:    0.01,
		VolumeMax:    10,
		VolumeStep:   0.01,
		CalcMode:     symbol.CalcForex,
		TradeMode:    symbol.TradeFull,
	})
}

func TestBuildWindowsSlidesForwardByOOS(t *testing.T) {
	windows := buildWindows(0, 100, 20, 10)
	if len(windows) == 0 {
		t.Fatal("expected at least one window")
	}
	for i, w := range windows {
		if w.Index != i {
			t.Errorf("window %d has Index %d", i, w.Index)
		}
		if w.ISEnd != w.OOSStart {
			t.Errorf("window %d: ISEnd %d != OOSStart %d", i, w.ISEnd, w.OOSStart)
		}
		if w.OOSEnd-w.OOSStart != 10 {
			t.Errorf("window %d: OOS span = %d, want 10", i, w.OOSEnd-w.OOSStart)
		}
		if w.OOSEnd > 100 {
			t.Errorf("window %d: OOSEnd %d exceeds fullEnd 100", i, w.OOSEnd)
		}
	}
	if len(windows) > 1 && windows[1].ISStart-windows[0].ISStart != 10 {
		t.Errorf("windows should slide forward by OOSPeriod (10), got %d", windows[1].ISStart-windows[0].ISStart)
	}
}

func TestBuildWindowsEmptyWhenRangeTooShort(t *testing.T) {
	if windows := buildWindows(0, 5, 20, 10); len(windows) != 0 {
		t.Fatalf("expected no windows for a range shorter than IS+OOS, got %d", len(windows))
	}
}

func TestRunAggregatesWindowsAndComputesWFER(t *testing.T) {
	reg, ds := registerFixture(t, 120)

	result, err := Run(context.Background(), reg, Config{
		Name:           "wf-demo",
		DatasetID:      ds.ID,
		Catalog:        testCatalog(),
		FullStart:      0,
		FullEnd:        120,
		ISPeriod:       30,
		OOSPeriod:      20,
		InitialBalance: 10_000,
		Leverage:       100,
		Currency:       "USD",
		NewStrategies:  func() []controller.Strategy { return []controller.Strategy{idleStrategy()} },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Windows) == 0 {
		t.Fatal("expected at least one window result")
	}
	if result.ISResult.Name != "wf-demo" {
		t.Errorf("ISResult.Name = %q, want wf-demo", result.ISResult.Name)
	}
	if result.PassRate < 0 || result.PassRate > 1 {
		t.Errorf("PassRate out of [0,1]: %v", result.PassRate)
	}
	if result.StabilityScore < 0 || result.StabilityScore > 1 {
		t.Errorf("StabilityScore out of [0,1]: %v", result.StabilityScore)
	}
}

func TestRunRequiresNewStrategies(t *testing.T) {
	reg, ds := registerFixture(t, 120)
	_, err := Run(context.Background(), reg, Config{
		DatasetID: ds.ID,
		Catalog:   testCatalog(),
		FullStart: 0,
		FullEnd:   120,
		ISPeriod:  30,
		OOSPeriod: 20,
	})
	if err == nil {
		t.Fatal("expected error when NewStrategies is nil")
	}
}

func TestRunFailsOnDatasetHashMismatch(t *testing.T) {
	reg, ds := registerFixture(t, 120)

	// Corrupt the backing file after registration.
	if err := os.WriteFile(ds.FilePath, []byte("time,bid,ask\n0,9.9999,9.9999\n"), 0o644); err != nil {
		t.Fatalf("corrupt fixture: %v", err)
	}

	_, err := Run(context.Background(), reg, Config{
		DatasetID:     ds.ID,
		Catalog:       testCatalog(),
		FullStart:     0,
		FullEnd:       120,
		ISPeriod:      30,
		OOSPeriod:     20,
		NewStrategies: func() []controller.Strategy { return []controller.Strategy{idleStrategy()} },
	})
	if err == nil {
		t.Fatal("expected error on dataset hash mismatch")
	}
}

func TestVerdictThresholds(t *testing.T) {
	cases := []struct {
		wfer float64
		want string
	}{
		{0.8, "EXCELLENT"},
		{0.55, "GOOD"},
		{0.1, "MARGINAL"},
		{-0.2, "FAIL"},
	}
	for _, c := range cases {
		got := Verdict(&Result{WFER: c.wfer})
		if got[:len(c.want)] != c.want {
			t.Errorf("Verdict(%.2f) = %q, want prefix %q", c.wfer, got, c.want)
		}
	}
}

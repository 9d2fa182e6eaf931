package backtest

import (
	"context"
	"testing"

	"github.com/quantrail/backtestcore/internal/audit"
	"github.com/quantrail/backtestcore/internal/barrier"
	"github.com/quantrail/backtestcore/internal/config"
	"github.com/quantrail/backtestcore/internal/controller"
	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/engine"
	"github.com/quantrail/backtestcore/internal/symbol"
	"github.com/quantrail/backtestcore/internal/trade"
)

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

func flatTicks(start, end int64, bid, ask float64) []dataset.Tick {
	return []dataset.Tick{{Time: start, Bid: bid, Ask: ask}, {Time: end, Bid: bid, Ask: ask}}
}

// buyOnceStrategy sends a single market buy on its first tick then just
// checkpoints at the barrier for every remaining tick.
func buyOnceStrategy() controller.Strategy {
	return func(ctx context.Context, eng controller.StrategyEngine, b *barrier.Barrier) error {
		sent := false
		for {
			if !sent {
				eng.OrderSend(ctx, engine.OrderRequest{
					Symbol: "EURUSD",
					Side:   trade.Buy,
					Volume: 0.1,
					Price:  1.1002,
				})
				sent = true
			}
			if err := b.Wait(); err != nil {
				if err == barrier.ErrBroken {
					return nil
				}
				return err
			}
		}
	}
}

func TestRunProducesResultOverFullRange(t *testing.T) {
	cfg := Config{
		Name:    "demo",
		Catalog: testCatalog(),
		Ticks: map[string][]dataset.Tick{
			"EURUSD": flatTicks(1000, 1010, 1.1000, 1.1002),
		},
		RunConfig: config.Config{
			Start:                    1000,
			End:                      1010,
			CloseOpenPositionsOnExit: true,
			AccountInfo: config.AccountSeed{
				Balance:  10_000,
				Leverage: 100,
				Currency: "USD",
			},
		},
		Strategies: []controller.Strategy{buyOnceStrategy()},
		Seed:       42,
	}

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Name != "demo" {
		t.Errorf("Name = %q, want demo", result.Name)
	}
	if result.Start != 1000 || result.End != 1010 {
		t.Errorf("Start/End = %d/%d, want 1000/1010", result.Start, result.End)
	}
	if result.Run.Seed != 42 {
		t.Errorf("Run.Seed = %d, want 42", result.Run.Seed)
	}
	if result.Run.StrategyCount != 1 {
		t.Errorf("Run.StrategyCount = %d, want 1", result.Run.StrategyCount)
	}
	if result.Run.RunID == "" {
		t.Error("Run.RunID is empty, want a generated UUID")
	}
	if len(result.PositionsClosed) != 1 {
		t.Fatalf("PositionsClosed has %d entries, want 1", len(result.PositionsClosed))
	}
	if result.PositionsClosed[0].Reason != trade.ReasonWrapUp {
		t.Errorf("close reason = %v, want ReasonWrapUp (flat price series, no SL/TP trigger)", result.PositionsClosed[0].Reason)
	}
}

func TestRunRejectsEmptyStrategySet(t *testing.T) {
	cfg := Config{
		Name:    "demo",
		Catalog: testCatalog(),
		Ticks: map[string][]dataset.Tick{
			"EURUSD": flatTicks(1000, 1010, 1.1, 1.1002),
		},
		RunConfig: config.Config{Start: 1000, End: 1010},
	}

	if _, err := Run(context.Background(), cfg); err == nil {
		t.Fatal("Run with no strategies: want error, got nil")
	}
}

func TestRunRejectsEmptyRange(t *testing.T) {
	cfg := Config{
		Name:       "demo",
		Catalog:    testCatalog(),
		RunConfig:  config.Config{Start: 1000, End: 1000},
		Strategies: []controller.Strategy{buyOnceStrategy()},
	}

	if _, err := Run(context.Background(), cfg); err == nil {
		t.Fatal("Run with empty range: want error, got nil")
	}
}

func TestRunLeavesPositionOpenWhenNotConfiguredToClose(t *testing.T) {
	cfg := Config{
		Name:    "demo",
		Catalog: testCatalog(),
		Ticks: map[string][]dataset.Tick{
			"EURUSD": flatTicks(1000, 1005, 1.1, 1.1002),
		},
		RunConfig: config.Config{
			Start: 1000,
			End:   1005,
			AccountInfo: config.AccountSeed{
				Balance:  10_000,
				Leverage: 100,
			},
		},
		Strategies: []controller.Strategy{buyOnceStrategy()},
	}

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.PositionsClosed) != 0 {
		t.Fatalf("PositionsClosed has %d entries, want 0 (close_open_positions_on_exit unset)", len(result.PositionsClosed))
	}
}

func TestRunRecordsAuditTrailWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Name:    "demo",
		Catalog: testCatalog(),
		Ticks: map[string][]dataset.Tick{
			"EURUSD": flatTicks(1000, 1010, 1.1000, 1.1002),
		},
		RunConfig: config.Config{
			Start:                    1000,
			End:                      1010,
			CloseOpenPositionsOnExit: true,
			AccountInfo: config.AccountSeed{
				Balance:  10_000,
				Leverage: 100,
				Currency: "USD",
			},
		},
		Strategies: []controller.Strategy{buyOnceStrategy()},
		AuditDir:   dir,
	}

	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	store, err := audit.Open(dir)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	entries, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one audit entry for a session that sent and closed an order")
	}

	emits, err := store.Filter("EURUSD", audit.DecisionEmit)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(emits) != 1 {
		t.Fatalf("emit entries = %d, want 1", len(emits))
	}
}

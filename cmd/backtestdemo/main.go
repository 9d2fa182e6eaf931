// Command backtestdemo is a go-run-able example wiring the packages in this
// repository into a single backtest session: a symbol catalog, a sawtooth
// synthetic tick series, a risk policy, and a crossing-average strategy, run
// through internal/backtest and printed as a JSON report. It exists to show
// the pieces fitting together, not as a product CLI (spec §1 excludes CLI
// glue as a surface). Grounded on cmd/research/backtest.go's dependency-
// wiring style (deleted from this module — that file was HTTP-handler glue
// around the same collaborators).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/quantrail/backtestcore/internal/backtest"
	"github.com/quantrail/backtestcore/internal/barrier"
	"github.com/quantrail/backtestcore/internal/config"
	"github.com/quantrail/backtestcore/internal/controller"
	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/engine"
	"github.com/quantrail/backtestcore/internal/metrics"
	"github.com/quantrail/backtestcore/internal/risk"
	"github.com/quantrail/backtestcore/internal/symbol"
	"github.com/quantrail/backtestcore/internal/trade"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "backtestdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	const sym = "EURUSD"

	catalog := symbol.NewCatalog(symbol.Info{
		Name:         sym,
		ContractSize: 100_000,
		VolumeMin:    0.01,
		VolumeMax:    10,
		VolumeStep:   0.01,
		CalcMode:     symbol.CalcForex,
		TradeMode:    symbol.TradeFull,
	})

	ticks := sawtoothTicks(sym, 1_700_000_000, 3_600, 1.0950, 0.0050)

	metricsReg := metrics.NewRegistry()

	cfg := backtest.Config{
		Name:    "sma-crossover-demo",
		Catalog: catalog,
		Ticks:   map[string][]dataset.Tick{sym: ticks},
		RunConfig: config.Config{
			Start:                    ticks[0].Time,
			End:                      ticks[len(ticks)-1].Time,
			CloseOpenPositionsOnExit: true,
			AccountInfo: config.AccountSeed{
				Balance:  10_000,
				Leverage: 100,
				Currency: "USD",
			},
		},
		RiskPolicy: risk.DefaultPolicy(),
		Metrics:    metricsReg,
		Strategies: []controller.Strategy{smaCrossoverStrategy(sym)},
		Seed:       1,
	}

	result, err := backtest.Run(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := result.WriteJSON(os.Stdout); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	metricsReg.WriteText(os.Stderr)
	return nil
}

// sawtoothTicks builds a deterministic ascending-then-descending price path
// so a moving-average crossover strategy has something to react to.
func sawtoothTicks(sym string, start, n int64, base, amplitude float64) []dataset.Tick {
	ticks := make([]dataset.Tick, 0, n)
	half := n / 2
	for i := int64(0); i < n; i++ {
		var frac float64
		if i <= half {
			frac = float64(i) / float64(half)
		} else {
			frac = float64(n-i) / float64(half)
		}
		mid := base + amplitude*frac
		ticks = append(ticks, dataset.Tick{
			Time: start + i,
			Bid:  mid,
			Ask:  mid + 0.0002,
		})
	}
	return ticks
}

// smaCrossoverStrategy tracks a short and a long simple moving average over
// the symbol's bid price and flips between long and flat on each crossover,
// demonstrating the read (GetSymbolInfoTick) / write (OrderSend /
// ClosePosition) surface controller.StrategyEngine hands to strategies.
func smaCrossoverStrategy(sym string) controller.Strategy {
	const shortWindow, longWindow = 5, 20

	return func(ctx context.Context, eng controller.StrategyEngine, b *barrier.Barrier) error {
		var history []float64
		var openTicket int64
		wasAbove := false
		haveSignal := false

		for {
			price, err := eng.GetSymbolInfoTick(sym)
			if err == nil {
				history = append(history, price.Bid)
				if len(history) > longWindow {
					history = history[len(history)-longWindow:]
				}

				if len(history) >= longWindow {
					short := average(history[len(history)-shortWindow:])
					long := average(history)
					above := short > long

					if haveSignal && above != wasAbove {
						if above && openTicket == 0 {
							res := eng.OrderSend(ctx, engine.OrderRequest{
								Symbol: sym,
								Side:   trade.Buy,
								Volume: 0.1,
								Price:  price.Ask,
							})
							if res.RetCode.OK() && res.Position != nil {
								openTicket = res.Position.Ticket
							}
						} else if !above && openTicket != 0 {
							if eng.ClosePosition(ctx, openTicket) {
								openTicket = 0
							}
						}
					}
					wasAbove = above
					haveSignal = true
				}
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

func average(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

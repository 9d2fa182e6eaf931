// Package walkforward implements out-of-sample (OOS) validation on top of
// the core backtest engine (spec §11.4, §8 Scenario 9): split a historical
// range into overlapping in-sample/out-of-sample windows, run a backtest
// session on each slice, and aggregate the result into a WF Efficiency
// Ratio (WFER) — the ratio of mean OOS annualised return to the IS
// reference run's annualised return. Grounded on libs/walkforward/engine.go
// (kept the window-slicing/annualise/WFER-aggregation shape; retargeted from
// libs/strategies.Backtester + libs/dataset.Registry's candle-bar data
// source to internal/backtest.Run + internal/dataset.Registry's tick data,
// since that strategy-registry layer no longer exists in this module).
package walkforward

import (
	"context"
	"fmt"
	"math"

	"github.com/quantrail/backtestcore/internal/backtest"
	"github.com/quantrail/backtestcore/internal/bridge"
	"github.com/quantrail/backtestcore/internal/config"
	"github.com/quantrail/backtestcore/internal/controller"
	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/logging"
	"github.com/quantrail/backtestcore/internal/metrics"
	"github.com/quantrail/backtestcore/internal/report"
	"github.com/quantrail/backtestcore/internal/risk"
	"github.com/quantrail/backtestcore/internal/symbol"
	"github.com/quantrail/backtestcore/internal/trade"
)

const (
	defaultISPeriod  = 252 * 24 * 60 * 60 // seconds, ~1 trading year of calendar days
	defaultOOSPeriod = 63 * 24 * 60 * 60  // seconds, ~1 trading quarter
	tradingDaySecs   = 24 * 60 * 60
	tradingYearDays  = 252
)

// Config defines a single walk-forward validation run.
type Config struct {
	Name       string
	DatasetID  string
	Catalog    *symbol.Catalog
	RiskPolicy *risk.Policy  // nil disables the risk gate
	Bridge     bridge.Bridge // only consulted when UseTerminal is set on the underlying sessions
	Metrics    *metrics.Registry

	FullStart int64 // unix seconds bounding the whole range to split
	FullEnd   int64
	ISPeriod  int64 // seconds; defaults to defaultISPeriod when zero
	OOSPeriod int64 // seconds; defaults to defaultOOSPeriod when zero

	InitialBalance float64
	Leverage       float64
	Currency       string
	Seed           int64 // 0 auto-generates; each window offsets by its index

	// NewStrategies builds a fresh set of strategy tasks for one session run.
	// Called once per window (and once for the IS reference run) since
	// strategies carry per-run state and cannot be reused across sessions.
	NewStrategies func() []controller.Strategy
}

// Window describes one IS/OOS pair, in unix-second boundaries.
type Window struct {
	Index    int
	ISStart  int64
	ISEnd    int64
	OOSStart int64
	OOSEnd   int64
}

// WindowResult holds the OOS outcome for one walk-forward window.
type WindowResult struct {
	Window
	TotalTrades   int
	WinRate       float64
	TotalReturn   float64 // absolute balance delta over the OOS period
	AnnualisedRet float64
	FinalBalance  float64
}

// Result is the aggregate output of a walk-forward validation run.
type Result struct {
	Config Config

	Windows  []WindowResult
	ISResult report.Result // full in-sample reference run

	MeanOOSReturn  float64 // mean of AnnualisedRet across windows
	WFER           float64 // MeanOOSReturn / IS annualised return
	PassRate       float64 // fraction of windows with positive OOS return
	TotalOOSTrades int

	// StabilityScore in [0, 1]: fraction of windows beating zero return,
	// weighted by trade count.
	StabilityScore float64
}

// Run executes a full walk-forward validation against the dataset
// identified by cfg.DatasetID, verifying its content hash first so a
// silently-changed fixture never produces a falsely reproducible result.
func Run(ctx context.Context, datasets *dataset.Registry, cfg Config) (*Result, error) {
	if cfg.ISPeriod == 0 {
		cfg.ISPeriod = defaultISPeriod
	}
	if cfg.OOSPeriod == 0 {
		cfg.OOSPeriod = defaultOOSPeriod
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 100_000
	}
	if cfg.NewStrategies == nil {
		return nil, fmt.Errorf("walkforward: NewStrategies is required")
	}

	if err := datasets.VerifyHash(cfg.DatasetID); err != nil {
		return nil, fmt.Errorf("walkforward: %w", err)
	}
	ds, err := datasets.Get(cfg.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("walkforward: dataset: %w", err)
	}
	ticks, err := datasets.LoadTicks(cfg.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("walkforward: load ticks: %w", err)
	}

	logging.Event(ctx, "info", "walkforward_started", map[string]any{
		"dataset":    ds.ID,
		"symbol":     ds.Symbol,
		"is_period":  cfg.ISPeriod,
		"oos_period": cfg.OOSPeriod,
	})

	windows := buildWindows(cfg.FullStart, cfg.FullEnd, cfg.ISPeriod, cfg.OOSPeriod)
	if len(windows) == 0 {
		return nil, fmt.Errorf("walkforward: range too short to form a single IS+OOS window (need >= %d seconds)",
			cfg.ISPeriod+cfg.OOSPeriod)
	}

	isEnd := windows[len(windows)-1].ISEnd
	isResult, err := runSlice(ctx, ds.Symbol, ticks, cfg, cfg.FullStart, isEnd, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("walkforward: IS reference run: %w", err)
	}
	isAnnualised := annualise((isResult.AccountFinal.Balance-cfg.InitialBalance)/cfg.InitialBalance, cfg.FullStart, isEnd)

	var winResults []WindowResult
	for _, w := range windows {
		res, err := runSlice(ctx, ds.Symbol, ticks, cfg, w.OOSStart, w.OOSEnd, cfg.Seed+int64(w.Index))
		if err != nil {
			logging.Event(ctx, "warn", "walkforward_window_failed", map[string]any{
				"window": w.Index,
				"error":  err,
			})
			continue
		}

		trades, wins := countTrades(res.Deals)
		totalReturn := res.AccountFinal.Balance - cfg.InitialBalance
		ann := annualise(totalReturn/cfg.InitialBalance, w.OOSStart, w.OOSEnd)

		var winRate float64
		if trades > 0 {
			winRate = float64(wins) / float64(trades)
		}

		winResults = append(winResults, WindowResult{
			Window:        w,
			TotalTrades:   trades,
			WinRate:       winRate,
			TotalReturn:   totalReturn,
			AnnualisedRet: ann,
			FinalBalance:  res.AccountFinal.Balance,
		})

		logging.Event(ctx, "info", "walkforward_window_done", map[string]any{
			"window":      w.Index,
			"trades":      trades,
			"ann_return":  ann,
			"oos_start":   w.OOSStart,
			"oos_end":     w.OOSEnd,
		})
	}

	if len(winResults) == 0 {
		return nil, fmt.Errorf("walkforward: all OOS windows failed to produce results")
	}

	result := &Result{
		Config:   cfg,
		Windows:  winResults,
		ISResult: isResult,
	}

	var sumRet float64
	var sumTrades int
	var positiveWindows int
	var weightedPositive float64
	var totalWeight float64

	for _, w := range winResults {
		sumRet += w.AnnualisedRet
		sumTrades += w.TotalTrades
		if w.AnnualisedRet > 0 {
			positiveWindows++
		}
		weight := math.Max(float64(w.TotalTrades), 1)
		totalWeight += weight
		if w.AnnualisedRet > 0 {
			weightedPositive += weight
		}
	}

	result.MeanOOSReturn = sumRet / float64(len(winResults))
	result.TotalOOSTrades = sumTrades
	result.PassRate = float64(positiveWindows) / float64(len(winResults))
	if totalWeight > 0 {
		result.StabilityScore = weightedPositive / totalWeight
	}
	if isAnnualised != 0 {
		result.WFER = result.MeanOOSReturn / isAnnualised
	}

	logging.Event(ctx, "info", "walkforward_done", map[string]any{
		"windows":         len(winResults),
		"wfer":            result.WFER,
		"pass_rate":       result.PassRate,
		"stability_score": result.StabilityScore,
	})

	return result, nil
}

// runSlice runs one backtest session over [start, end) against sym's ticks,
// seeded with cfg's account/risk/bridge collaborators.
func runSlice(ctx context.Context, sym string, ticks []dataset.Tick, cfg Config, start, end, seed int64) (report.Result, error) {
	return backtest.Run(ctx, backtest.Config{
		Name:    cfg.Name,
		Catalog: cfg.Catalog,
		Ticks:   map[string][]dataset.Tick{sym: ticks},
		RunConfig: config.Config{
			Start:                    start,
			End:                      end,
			CloseOpenPositionsOnExit: true,
			AccountInfo: config.AccountSeed{
				Balance:  cfg.InitialBalance,
				Leverage: cfg.Leverage,
				Currency: cfg.Currency,
			},
		},
		RiskPolicy: cfg.RiskPolicy,
		Bridge:     cfg.Bridge,
		Metrics:    cfg.Metrics,
		Strategies: cfg.NewStrategies(),
		Seed:       seed,
	})
}

// countTrades counts closed round-trips (EntryOut deals) and how many closed
// in profit.
func countTrades(deals []*trade.Deal) (total, wins int) {
	for _, d := range deals {
		if d.Entry != trade.EntryOut {
			continue
		}
		total++
		if d.Profit > 0 {
			wins++
		}
	}
	return total, wins
}

// buildWindows generates IS/OOS window pairs anchored to fullStart. Each
// subsequent window slides forward by oos seconds.
func buildWindows(fullStart, fullEnd, is, oos int64) []Window {
	var windows []Window
	idx := 0
	for {
		isStart := fullStart + int64(idx)*oos
		isEnd := isStart + is
		oosStart := isEnd
		oosEnd := oosStart + oos

		if oosEnd > fullEnd {
			break
		}

		windows = append(windows, Window{
			Index:    idx,
			ISStart:  isStart,
			ISEnd:    isEnd,
			OOSStart: oosStart,
			OOSEnd:   oosEnd,
		})
		idx++
	}
	return windows
}

// annualise converts a fractional return over [start, end) to a compound
// annual growth rate, using a 252-trading-day year.
func annualise(ret float64, start, end int64) float64 {
	days := float64(end-start) / tradingDaySecs
	if days <= 0 {
		return 0
	}
	years := days / tradingYearDays
	if years <= 0 {
		return 0
	}
	return math.Pow(1+ret, 1/years) - 1
}

// Verdict returns a human-readable summary of the walk-forward quality.
func Verdict(r *Result) string {
	switch {
	case r.WFER >= 0.7:
		return "EXCELLENT: strategy transfers to OOS data well"
	case r.WFER >= 0.5:
		return "GOOD: strategy is deployable"
	case r.WFER >= 0.0:
		return "MARGINAL: live performance likely to underperform IS"
	default:
		return "FAIL: strategy loses money out-of-sample, do not deploy"
	}
}

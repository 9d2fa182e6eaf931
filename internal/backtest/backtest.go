// Package backtest provides the top-level orchestration entry point: wiring
// a symbol catalog, tick data, risk policy, optional broker bridge, and a
// set of strategies into a cursor + engine + controller session, then
// composing the result report. Grounded on
// internal/modules/backtest/engine.go's Run (kept the seed/RunID/duration
// bookkeeping shape; replaced the wrapped libs/strategies.Backtester call
// with direct engine/controller/cursor construction, since this repo has no
// separate strategy-registry layer to delegate to).
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantrail/backtestcore/internal/account"
	"github.com/quantrail/backtestcore/internal/audit"
	"github.com/quantrail/backtestcore/internal/bridge"
	"github.com/quantrail/backtestcore/internal/config"
	"github.com/quantrail/backtestcore/internal/controller"
	"github.com/quantrail/backtestcore/internal/cursor"
	"github.com/quantrail/backtestcore/internal/dataset"
	"github.com/quantrail/backtestcore/internal/engine"
	"github.com/quantrail/backtestcore/internal/logging"
	"github.com/quantrail/backtestcore/internal/metrics"
	"github.com/quantrail/backtestcore/internal/pricing"
	"github.com/quantrail/backtestcore/internal/report"
	"github.com/quantrail/backtestcore/internal/risk"
	"github.com/quantrail/backtestcore/internal/symbol"
)

// Config is the full input to Run: the plain-JSON run configuration (spec
// §6) plus the domain collaborators it references by option
// (use_terminal → Bridge, account_info → seeded through RunConfig directly).
type Config struct {
	Name       string
	RunConfig  config.Config
	Catalog    *symbol.Catalog
	Ticks      map[string][]dataset.Tick // raw per-symbol ticks to reindex over [Start, End)
	RiskPolicy *risk.Policy              // nil disables the risk gate
	Bridge     bridge.Bridge             // required only when RunConfig.UseTerminal is set
	Metrics    *metrics.Registry         // nil disables metrics collection
	Strategies []controller.Strategy
	Seed       int64 // 0 auto-generates from wall clock, recorded in the result's RunRecord

	// AuditDir, when set, records every order_send/close_position/modify_stops
	// outcome to an append-only decision trace under this directory.
	AuditDir string
}

// Run assembles a session from cfg, drives it to completion through
// internal/controller, and returns the composed result report (spec §4.7).
func Run(ctx context.Context, cfg Config) (report.Result, error) {
	if len(cfg.Strategies) == 0 {
		return report.Result{}, fmt.Errorf("backtest: at least one strategy is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runID := uuid.New().String()
	startedAt := time.Now().UTC()

	ctx = logging.WithRunInfo(ctx, logging.RunInfo{RunID: runID})

	frames := make(map[string]*pricing.Frame, len(cfg.Ticks))
	for sym, ticks := range cfg.Ticks {
		frame, err := pricing.Reindex(ticks, cfg.RunConfig.Start, cfg.RunConfig.End)
		if err != nil {
			return report.Result{}, fmt.Errorf("backtest: reindex %s: %w", sym, err)
		}
		frames[sym] = frame
	}

	rng := buildRange(cfg.RunConfig.Start, cfg.RunConfig.End, cfg.RunConfig.Speed)
	if len(rng) == 0 {
		return report.Result{}, fmt.Errorf("backtest: empty range [%d, %d)", cfg.RunConfig.Start, cfg.RunConfig.End)
	}
	clock := cursor.New(rng)
	if cfg.RunConfig.StopTime > 0 {
		clock = clock.WithStopTime(cfg.RunConfig.StopTime)
	}

	var backtestMetrics *metrics.BacktestMetrics
	if cfg.Metrics != nil {
		backtestMetrics = metrics.NewBacktestMetrics(cfg.Metrics)
	}

	useBridge := cfg.RunConfig.UseTerminal && cfg.Bridge != nil

	eng := engine.New(engine.Config{
		Catalog:    cfg.Catalog,
		Frames:     frames,
		Clock:      clock,
		Account:    seedAccount(cfg.RunConfig.AccountInfo),
		RiskPolicy: cfg.RiskPolicy,
		Bridge:     cfg.Bridge,
		UseBridge:  useBridge,
		Metrics:    backtestMetrics,
	})

	var sessionEngine controller.Engine = eng
	if cfg.AuditDir != "" {
		store, err := audit.Open(cfg.AuditDir)
		if err != nil {
			return report.Result{}, fmt.Errorf("backtest: open audit trail: %w", err)
		}
		sessionEngine = &auditingEngine{Engine: eng, store: store}
	}

	ctrl := controller.New(controller.Config{
		Engine:                   sessionEngine,
		Clock:                    clock,
		Strategies:               cfg.Strategies,
		CloseOpenPositionsOnExit: cfg.RunConfig.CloseOpenPositionsOnExit,
	})

	_, runErr := ctrl.Run(ctx)

	finishedAt := time.Now().UTC()
	openTickets := make(map[int64]struct{})
	for _, pos := range eng.OpenPositions() {
		openTickets[pos.Ticket] = struct{}{}
	}

	result := report.Build(report.BuildInput{
		Name:         cfg.Name,
		Start:        cfg.RunConfig.Start,
		End:          cfg.RunConfig.End,
		Account:      eng.Account(),
		AllPositions: eng.Positions(),
		OpenTickets:  openTickets,
		Orders:       eng.Orders(),
		Deals:        eng.Deals(),
		Parameters: map[string]any{
			"speed":                        cfg.RunConfig.Speed,
			"use_terminal":                 cfg.RunConfig.UseTerminal,
			"close_open_positions_on_exit": cfg.RunConfig.CloseOpenPositionsOnExit,
		},
		Run: report.RunRecord{
			RunID:         runID,
			Seed:          seed,
			StrategyCount: len(cfg.Strategies),
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
			DurationMs:    finishedAt.Sub(startedAt).Milliseconds(),
		},
	})

	if runErr != nil {
		return result, fmt.Errorf("backtest: session ended with error: %w", runErr)
	}
	return result, nil
}

// buildRange lists the cursor's timestamps over [start, end), step seconds
// apart; a step of zero or less advances one second at a time.
func buildRange(start, end, step int64) []int64 {
	if end <= start {
		return nil
	}
	if step <= 0 {
		step = 1
	}
	rng := make([]int64, 0, (end-start+step-1)/step)
	for t := start; t < end; t += step {
		rng = append(rng, t)
	}
	return rng
}

func seedAccount(seed config.AccountSeed) account.Info {
	return account.Info{
		Login:      seed.Login,
		Balance:    seed.Balance,
		Leverage:   seed.Leverage,
		Currency:   seed.Currency,
		TradeMode:  seed.TradeMode,
		MarginSoSo: seed.MarginSoSo,
	}
}

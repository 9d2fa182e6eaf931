// Package controller implements the barrier-based strategy synchronizer
// (spec §4.6): the control loop that keeps N strategy tasks lock-stepped
// with the engine's virtual clock, one barrier release per tick, running
// the engine's tracker and advancing the cursor exactly once per
// generation. Strategy fan-out follows the errgroup shape used elsewhere in
// the pack for "N workers, one cancels all on error"
// (other_examples/e24a3f0b_alanyoungcy-polymarketbot__internal-strategy-engine.go.go's
// errgroup.WithContext(ctx) / g.Go / g.Wait RunAll loop).
package controller

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quantrail/backtestcore/internal/account"
	"github.com/quantrail/backtestcore/internal/barrier"
	"github.com/quantrail/backtestcore/internal/cursor"
	"github.com/quantrail/backtestcore/internal/engine"
	"github.com/quantrail/backtestcore/internal/logging"
	"github.com/quantrail/backtestcore/internal/pricing"
	"github.com/quantrail/backtestcore/internal/symbol"
	"github.com/quantrail/backtestcore/internal/timeframe"
	"github.com/quantrail/backtestcore/internal/trade"
)

// StrategyEngine is the broker-shaped surface a Strategy drives (spec
// §4.5/§4.6): the same read-only queries and order/position lifecycle
// operations a live terminal bridge exposes, so strategy code written
// against it is unchanged between backtest and live. Satisfied by
// *engine.Engine.
type StrategyEngine interface {
	GetSymbolInfo(sym string) (symbol.Info, error)
	GetSymbolInfoTick(sym string) (pricing.Price, error)
	CopyRates(sym string, tf timeframe.Timeframe, start, end int64) ([]pricing.Bar, error)
	OrderCalcMargin(ctx context.Context, side trade.Side, sym string, volume, price float64) (float64, error)
	OrderCalcProfit(ctx context.Context, side trade.Side, sym string, volume, priceOpen, priceClose float64) (float64, error)
	OrderCheck(ctx context.Context, req engine.OrderRequest) engine.OrderCheckResult
	OrderSend(ctx context.Context, req engine.OrderRequest) engine.OrderSendResult
	ClosePosition(ctx context.Context, ticket int64) bool
	ModifyStops(ctx context.Context, ticket int64, sl, tp float64) bool
	Account() account.Info
	Positions() []*trade.Position
	OpenPositions() []*trade.Position
	Orders() []*trade.Order
	Deals() []*trade.Deal
}

// Engine is the subset of the simulated broker the controller drives
// directly, plus the full StrategyEngine surface it hands to each Strategy;
// satisfied by *engine.Engine.
type Engine interface {
	StrategyEngine
	Tracker(ctx context.Context) bool
	WrapUp(ctx context.Context, closeOpenPositions bool) int
}

// Strategy is one concurrent task the controller lock-steps against the
// engine's virtual clock. eng is the same engine instance every strategy and
// the controller share, giving strategies order_check/order_send/
// close_position/modify_stops and the read-only query operations. Run
// should loop: do per-tick work against eng, then call Wait() on b and
// return when ctx is cancelled or Wait returns barrier.ErrBroken.
type Strategy func(ctx context.Context, eng StrategyEngine, b *barrier.Barrier) error

// Config seeds a Controller.
type Config struct {
	Engine                   Engine
	Clock                    *cursor.Clock
	Strategies               []Strategy
	CloseOpenPositionsOnExit bool
}

// Controller runs the tick-loop described in spec §4.6: strategies check in
// at the barrier, the controller's OnRearm callback runs tracker() and
// advances the cursor, and the cycle repeats until burn-out, stop-time, or
// an explicit shutdown.
type Controller struct {
	engine                   Engine
	clock                    *cursor.Clock
	strategies               []Strategy
	closeOpenPositionsOnExit bool

	barrier *barrier.Barrier

	mu      sync.Mutex
	stopReq bool
	burnOut bool
	atEnd   bool
	tickErr error

	cancel context.CancelFunc
}

// New builds a Controller. The barrier's party count is fixed at
// len(cfg.Strategies); Run registers no further strategies after start.
func New(cfg Config) *Controller {
	b := barrier.New(len(cfg.Strategies))
	c := &Controller{
		engine:                   cfg.Engine,
		clock:                    cfg.Clock,
		strategies:               cfg.Strategies,
		closeOpenPositionsOnExit: cfg.CloseOpenPositionsOnExit,
		barrier:                  b,
	}
	b.OnRearm(c.onRearm)
	return c
}

// Barrier returns the controller's barrier, the handle strategies check in
// against.
func (c *Controller) Barrier() *barrier.Barrier { return c.barrier }

// StopBacktesting requests a cooperative shutdown: the control loop finishes
// its current iteration, then runs wrap_up and returns. Strategies complete
// their in-flight tick normally.
func (c *Controller) StopBacktesting(ctx context.Context) {
	c.mu.Lock()
	c.stopReq = true
	c.mu.Unlock()
	logging.LogControllerShutdown(ctx, "stop_backtesting", "requested")
}

// Abort tears the session down immediately: the barrier is broken, every
// strategy blocked in Wait (or about to call it) is released with
// barrier.ErrBroken, and the shared context is cancelled so no further
// strategy work is scheduled.
func (c *Controller) Abort(ctx context.Context) {
	logging.LogControllerShutdown(ctx, "abort", "requested")
	c.barrier.Abort()
	if c.cancel != nil {
		c.cancel()
	}
}

// Run drives the control loop to completion: it starts every registered
// strategy under a shared errgroup context, then blocks until the session
// ends (burn-out, end-of-range, stop-time, stop_backtesting, abort, or a
// strategy returning a non-nil error), runs wrap_up, and returns the number
// of positions it closed on exit.
//
// A strategy's returned error or unrecovered panic cancels the shared
// context for every other strategy through the same path Abort uses, so the
// barrier is never left permanently short one party.
func (c *Controller) Run(ctx context.Context) (closed int, err error) {
	gctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	g, gctx := errgroup.WithContext(gctx)
	for _, strategy := range c.strategies {
		strategy := strategy
		g.Go(func() error {
			return runStrategy(gctx, c.engine, c.barrier, strategy)
		})
	}

	waitErr := g.Wait()

	c.mu.Lock()
	tickErr := c.tickErr
	c.mu.Unlock()

	if waitErr != nil && tickErr == nil {
		tickErr = waitErr
	}

	closed = c.engine.WrapUp(ctx, c.closeOpenPositionsOnExit)
	return closed, tickErr
}

// runStrategy wraps a Strategy with panic recovery so one strategy crashing
// tears the session down as a returned error instead of taking the process
// (and the barrier's other waiters) down with it. Any non-nil result, a
// recovered panic or a returned error, aborts the barrier.
func runStrategy(ctx context.Context, eng StrategyEngine, b *barrier.Barrier, s Strategy) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("controller: strategy panicked: %v", r)
		}
		if err != nil {
			b.Abort()
		}
	}()
	return s(ctx, eng, b)
}

// onRearm is the barrier's last-arriving-party callback (spec §4.6 steps
// 2-5): run tracker(), decide whether to stop, and advance the cursor. It
// runs from exactly one goroutine — whichever strategy arrives last at the
// barrier for this generation — while every other strategy is still parked
// in Wait, so no concurrent access to the engine or cursor is possible here.
func (c *Controller) onRearm() {
	burnOut := c.engine.Tracker(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()

	if burnOut {
		c.burnOut = true
		c.barrier.Abort()
		return
	}
	if c.stopReq {
		c.barrier.Abort()
		return
	}
	if c.clock.AtEnd() {
		c.atEnd = true
		c.barrier.Abort()
		return
	}
	if _, err := c.clock.Next(); err != nil {
		c.tickErr = err
		c.barrier.Abort()
		return
	}
}

// BurnOut reports whether the session ended because the engine signalled a
// stop-out condition.
func (c *Controller) BurnOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.burnOut
}

// AtEnd reports whether the session ended because the cursor reached the
// end of its configured range (or stop_time).
func (c *Controller) AtEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atEnd
}

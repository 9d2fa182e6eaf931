// Package engine implements the simulated broker (spec §4.5): the single
// component every strategy talks to for symbol/account queries and order
// lifecycle operations, grounded on the teacher's SimBroker (libs/replay)
// generalized from market-order fills against OHLCV candles to tick-driven
// order_check/order_send/close_position/modify_stops/tracker semantics.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/quantrail/backtestcore/internal/account"
	"github.com/quantrail/backtestcore/internal/bridge"
	"github.com/quantrail/backtestcore/internal/cursor"
	"github.com/quantrail/backtestcore/internal/logging"
	"github.com/quantrail/backtestcore/internal/managers"
	"github.com/quantrail/backtestcore/internal/metrics"
	"github.com/quantrail/backtestcore/internal/pricing"
	"github.com/quantrail/backtestcore/internal/retcode"
	"github.com/quantrail/backtestcore/internal/risk"
	"github.com/quantrail/backtestcore/internal/symbol"
	"github.com/quantrail/backtestcore/internal/timeframe"
	"github.com/quantrail/backtestcore/internal/trade"
)

// OrderRequest is the input to OrderCheck and OrderSend.
type OrderRequest struct {
	Symbol    string
	Side      trade.Side
	Volume    float64
	Price     float64
	SL        float64
	TP        float64
	Deviation float64 // acceptable price slippage, in price units
	Magic     int64
	Comment   string
}

// OrderCheckResult is the outcome of validating an OrderRequest (spec §4.5.3).
// Err carries an engine-internal failure (no-tick, currency-cross-unavailable)
// distinct from a RetCode rejection — strategies check RetCode first.
type OrderCheckResult struct {
	RetCode             retcode.RetCode
	Err                 error
	Margin              float64
	ProjectedBalance    float64
	ProjectedEquity     float64
	ProjectedMargin     float64
	ProjectedMarginFree float64
	ProjectedMarginLevel float64
}

// OrderSendResult is the outcome of OrderSend (spec §4.5.4).
type OrderSendResult struct {
	RetCode  retcode.RetCode
	Order    *trade.Order
	Deal     *trade.Deal
	Position *trade.Position
	Volume   float64
	Price    float64
}

// Config seeds a new Engine.
type Config struct {
	Catalog    *symbol.Catalog
	Frames     map[string]*pricing.Frame // reindexed per-second prices, by symbol
	Clock      *cursor.Clock
	Account    account.Info
	RiskPolicy *risk.Policy  // nil disables the risk gate
	Bridge     bridge.Bridge // delegated-mode collaborator; nil forces local mode
	UseBridge  bool          // selects delegated mode for order_calc_margin/profit
	Metrics    *metrics.BacktestMetrics
}

// Engine is the simulated broker. All state-mutating operations are
// serialized under mu, mirroring the account ledger's own reentrant lock —
// strategies may call concurrently between barrier checkpoints, but the
// engine's own bookkeeping is never torn.
type Engine struct {
	mu sync.Mutex

	catalog *symbol.Catalog
	frames  map[string]*pricing.Frame
	clock   *cursor.Clock

	ledger    *account.Ledger
	positions *managers.PositionsManager
	orders    *managers.OrdersManager
	deals     *managers.DealsManager

	riskEnforcer *risk.Enforcer
	bridge       bridge.Bridge
	useBridge    bool
	metrics      *metrics.BacktestMetrics

	ticketSeq int64

	// peakEquity/dayAnchor* feed risk.PortfolioState's CurrentDrawdown and
	// DailyLossDollar (spec §4.4 Supplemental) so DRAWDOWN_HALT and
	// DAILY_LOSS_EXCEEDED are reachable from a live equity curve, not just
	// from hand-built risk.PortfolioState values in tests.
	peakEquity      float64
	dayAnchorTime   int64
	dayAnchorEquity float64
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	var enforcer *risk.Enforcer
	if cfg.RiskPolicy != nil {
		enforcer = risk.NewEnforcer(cfg.RiskPolicy)
	}
	ledger := account.New(cfg.Account)
	snap := ledger.Snapshot()
	e := &Engine{
		catalog:         cfg.Catalog,
		frames:          cfg.Frames,
		clock:           cfg.Clock,
		ledger:          ledger,
		positions:       managers.NewPositionsManager(),
		orders:          managers.NewOrdersManager(),
		deals:           managers.NewDealsManager(),
		riskEnforcer:    enforcer,
		bridge:          cfg.Bridge,
		useBridge:       cfg.UseBridge,
		metrics:         cfg.Metrics,
		peakEquity:      snap.Equity,
		dayAnchorEquity: snap.Equity,
	}
	if cfg.Clock != nil {
		e.dayAnchorTime = dayStart(cfg.Clock.Current().Time)
	}
	return e
}

// dayStart floors t (unix seconds) to the start of its containing day, the
// boundary daily-loss tracking resets against.
func dayStart(t int64) int64 {
	day := timeframe.D1.Seconds()
	return t - t%day
}

// Account returns the current account snapshot.
func (e *Engine) Account() account.Info { return e.ledger.Snapshot() }

// Positions returns every position, open or historical, in insertion order.
func (e *Engine) Positions() []*trade.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.Values()
}

// OpenPositions returns only the currently open positions.
func (e *Engine) OpenPositions() []*trade.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.OpenPositionsIter()
}

// Orders returns the full historical order record set.
func (e *Engine) Orders() []*trade.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orders.Values()
}

// Deals returns the full historical deal record set.
func (e *Engine) Deals() []*trade.Deal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deals.Values()
}

// GetSymbolInfo returns the static instrument metadata for sym, as loaded
// into the catalog at construction (spec §4.5 get_symbol_info).
func (e *Engine) GetSymbolInfo(sym string) (symbol.Info, error) {
	info, ok := e.catalog.Get(sym)
	if !ok {
		return symbol.Info{}, retcode.NewEngineError(retcode.DataMissing, sym)
	}
	return info, nil
}

// GetSymbolInfoTick resolves the current-time price row for sym (spec §4.5.1).
func (e *Engine) GetSymbolInfoTick(sym string) (pricing.Price, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickAt(sym)
}

// CopyRates rolls sym's reindexed tick frame up into OHLC bars of the given
// timeframe over [start, end), never past the current cursor time (spec §4.5
// copy_rates_from/_range — a strategy only ever sees history up to "now").
func (e *Engine) CopyRates(sym string, tf timeframe.Timeframe, start, end int64) ([]pricing.Bar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	frame, ok := e.frames[sym]
	if !ok {
		return nil, retcode.NewEngineError(retcode.DataMissing, sym)
	}
	if now := e.clock.Current().Time; end > now+1 {
		end = now + 1
	}
	return pricing.BuildRates(frame, tf, start, end)
}

func (e *Engine) tickAt(sym string) (pricing.Price, error) {
	frame, ok := e.frames[sym]
	if !ok {
		return pricing.Price{}, retcode.NewEngineError(retcode.NoTick, sym)
	}
	price, ok := frame.At(e.clock.Current().Time)
	if !ok {
		return pricing.Price{}, retcode.NewEngineError(retcode.NoTick, sym)
	}
	return price, nil
}

// crossRate resolves the rate that converts one unit of quoteCurrency into
// accountCurrency, via the latest tick of the cross pair (spec §4.5.2). It
// tries the direct pair (quoteCurrency+accountCurrency) then the inverse
// (accountCurrency+quoteCurrency), same as a broker's own cross-rate lookup.
// It takes no lock itself and reads ticks only through tickAt, never through
// GetSymbolInfoTick (which locks), because it is reached both from paths that
// already hold e.mu and from the unlocked OrderCalcMargin/OrderCalcProfit.
func (e *Engine) crossRate(quoteCurrency, accountCurrency string) (float64, error) {
	if quoteCurrency == "" || accountCurrency == "" || quoteCurrency == accountCurrency {
		return 1, nil
	}
	direct := quoteCurrency + accountCurrency
	if tick, err := e.tickAt(direct); err == nil {
		return (tick.Bid + tick.Ask) / 2, nil
	}
	inverse := accountCurrency + quoteCurrency
	if tick, err := e.tickAt(inverse); err == nil {
		mid := (tick.Bid + tick.Ask) / 2
		if mid == 0 {
			return 0, retcode.NewEngineError(retcode.CurrencyCrossUnavailable, direct)
		}
		return 1 / mid, nil
	}
	return 0, retcode.NewEngineError(retcode.CurrencyCrossUnavailable, direct)
}

// OrderCalcMargin computes the margin a hypothetical order of the given side,
// symbol, volume and price would reserve (spec §4.5.2).
func (e *Engine) OrderCalcMargin(ctx context.Context, side trade.Side, sym string, volume, price float64) (float64, error) {
	if e.useBridge && e.bridge != nil {
		return e.bridge.CalcMargin(ctx, bridge.MarginRequest{Side: side.String(), Symbol: sym, Volume: volume, Price: price})
	}
	info, ok := e.catalog.Get(sym)
	if !ok {
		return 0, retcode.NewEngineError(retcode.DataMissing, sym)
	}
	return e.calcMarginLocal(info, volume, price)
}

// OrderCalcProfit computes the realized/unrealized profit of closing a
// position at priceClose given it was opened at priceOpen (spec §4.5.2).
func (e *Engine) OrderCalcProfit(ctx context.Context, side trade.Side, sym string, volume, priceOpen, priceClose float64) (float64, error) {
	if e.useBridge && e.bridge != nil {
		return e.bridge.CalcProfit(ctx, bridge.ProfitRequest{Side: side.String(), Symbol: sym, Volume: volume, PriceOpen: priceOpen, PriceClose: priceClose})
	}
	info, ok := e.catalog.Get(sym)
	if !ok {
		return 0, retcode.NewEngineError(retcode.DataMissing, sym)
	}
	return e.calcProfitLocal(side, info, volume, priceOpen, priceClose)
}

// calcMarginLocal computes margin in the symbol's own terms, then, for
// FOREX/FOREX_NO_LEVERAGE symbols quoted in a currency other than the
// account's, converts through the cross pair's latest tick (spec §4.5.2).
// CFD/futures calc modes settle in the account currency directly and never
// convert.
func (e *Engine) calcMarginLocal(info symbol.Info, volume, price float64) (float64, error) {
	leverage := info.Leverage
	if leverage <= 0 {
		leverage = e.ledger.Snapshot().Leverage
	}
	if leverage <= 0 {
		leverage = 1
	}

	var margin float64
	switch info.CalcMode {
	case symbol.CalcForex:
		margin = volume * info.ContractSize * price / leverage
	case symbol.CalcForexNoLeverage:
		margin = volume * info.ContractSize * price
	case symbol.CalcCFDIndex, symbol.CalcFutures:
		if info.TradeTickSize > 0 && info.TradeTickValue > 0 {
			base := volume * info.ContractSize * (info.TradeTickValue / info.TradeTickSize)
			if info.CalcMode == symbol.CalcFutures {
				margin = base
			} else {
				margin = base / leverage
			}
		} else {
			margin = volume * info.ContractSize * price / leverage
		}
	default: // CalcCFD, CalcCFDLeverage
		margin = volume * info.ContractSize * price / leverage
	}

	if info.CalcMode == symbol.CalcForex || info.CalcMode == symbol.CalcForexNoLeverage {
		rate, err := e.crossRate(info.QuoteCurrency, e.ledger.Snapshot().Currency)
		if err != nil {
			return 0, err
		}
		margin *= rate
	}
	return margin, nil
}

// calcProfitLocal mirrors calcMarginLocal's cross-rate conversion for
// realized/unrealized profit (spec §4.5.2).
func (e *Engine) calcProfitLocal(side trade.Side, info symbol.Info, volume, priceOpen, priceClose float64) (float64, error) {
	delta := priceClose - priceOpen
	if side == trade.Sell {
		delta = -delta
	}
	var profit float64
	if info.TradeTickSize > 0 && info.TradeTickValue > 0 {
		profit = delta / info.TradeTickSize * info.TradeTickValue * volume
	} else {
		profit = delta * volume * info.ContractSize
	}

	if info.CalcMode == symbol.CalcForex || info.CalcMode == symbol.CalcForexNoLeverage {
		rate, err := e.crossRate(info.QuoteCurrency, e.ledger.Snapshot().Currency)
		if err != nil {
			return 0, err
		}
		profit *= rate
	}
	return profit, nil
}

// OrderCheck validates req against the six-step chain in spec §4.5.3, without
// mutating any state.
func (e *Engine) OrderCheck(ctx context.Context, req OrderRequest) OrderCheckResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderCheckLocked(ctx, req)
}

func (e *Engine) orderCheckLocked(ctx context.Context, req OrderRequest) OrderCheckResult {
	info, ok := e.catalog.Get(req.Symbol)
	if !ok {
		return e.rejectCheck(ctx, req, retcode.INVALID, "unknown symbol")
	}

	if !info.VolumeValid(req.Volume) {
		return e.rejectCheck(ctx, req, retcode.INVALID_VOLUME, "volume out of bounds")
	}

	tick, err := e.tickAt(req.Symbol)
	if err != nil {
		return OrderCheckResult{RetCode: retcode.INVALID, Err: err}
	}

	if req.Price <= 0 {
		return e.rejectCheck(ctx, req, retcode.INVALID_PRICE, "non-positive price")
	}
	lower, upper := tick.Bid-req.Deviation, tick.Ask+req.Deviation
	if req.Price < lower-1e-9 || req.Price > upper+1e-9 {
		return e.rejectCheck(ctx, req, retcode.PRICE_CHANGED, "price outside deviation band")
	}

	switch info.TradeMode {
	case symbol.TradeDisabled:
		return e.rejectCheck(ctx, req, retcode.TRADE_DISABLED, "trading disabled for symbol")
	case symbol.TradeLongOnly:
		if req.Side == trade.Sell {
			return e.rejectCheck(ctx, req, retcode.LONG_ONLY, "symbol is long-only")
		}
	case symbol.TradeShortOnly:
		if req.Side == trade.Buy {
			return e.rejectCheck(ctx, req, retcode.SHORT_ONLY, "symbol is short-only")
		}
	case symbol.TradeCloseOnly:
		return e.rejectCheck(ctx, req, retcode.CLOSE_ONLY, "symbol is close-only")
	}

	margin, err := e.OrderCalcMargin(ctx, req.Side, req.Symbol, req.Volume, req.Price)
	if err != nil {
		return OrderCheckResult{RetCode: retcode.INVALID, Err: err}
	}

	snap := e.ledger.Snapshot()

	if e.riskEnforcer != nil {
		signal := risk.SignalInput{
			Symbol:        req.Symbol,
			EntryPrice:    req.Price,
			StopLoss:      req.SL,
			AccountEquity: snap.Equity,
			PositionValue: req.Volume * info.ContractSize * req.Price,
		}
		if violations := e.riskEnforcer.CheckSignal(signal); !violations.IsEmpty() {
			e.countViolations(violations)
			return e.rejectCheck(ctx, req, violationRetCode(violations[0]), violations.Error())
		}
		portfolio := e.portfolioStateLocked(snap)
		if violations := e.riskEnforcer.CheckPortfolio(portfolio); !violations.IsEmpty() {
			e.countViolations(violations)
			return e.rejectCheck(ctx, req, retcode.LIMIT_POSITIONS, violations.Error())
		}
	}

	if margin > snap.MarginFree {
		return e.rejectCheck(ctx, req, retcode.NO_MONEY, "insufficient free margin")
	}

	projMargin := snap.Margin + margin
	projMarginFree := snap.Equity - projMargin
	var projMarginLevel float64
	if projMargin > 0 {
		projMarginLevel = (snap.Equity / projMargin) * 100
	}

	return OrderCheckResult{
		RetCode:              retcode.DONE,
		Margin:               margin,
		ProjectedBalance:     snap.Balance,
		ProjectedEquity:      snap.Equity,
		ProjectedMargin:      projMargin,
		ProjectedMarginFree:  projMarginFree,
		ProjectedMarginLevel: projMarginLevel,
	}
}

func (e *Engine) rejectCheck(ctx context.Context, req OrderRequest, rc retcode.RetCode, reason string) OrderCheckResult {
	logging.LogOrderRejected(ctx, req.Symbol, rc.String(), reason)
	return OrderCheckResult{RetCode: rc}
}

func violationRetCode(v risk.Violation) retcode.RetCode {
	switch v.Code {
	case risk.ViolationStopTooTight, risk.ViolationStopTooWide:
		return retcode.INVALID_STOPS
	case risk.ViolationTooManyPositions:
		return retcode.LIMIT_POSITIONS
	default:
		return retcode.LIMIT_VOLUME
	}
}

// OrderSend runs OrderCheck and, on success, atomically mints tickets and
// inserts the resulting order/deal/position (spec §4.5.4).
func (e *Engine) OrderSend(ctx context.Context, req OrderRequest) OrderSendResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	check := e.orderCheckLocked(ctx, req)
	if !check.RetCode.OK() {
		return OrderSendResult{RetCode: check.RetCode}
	}

	tick, err := e.tickAt(req.Symbol)
	if err != nil {
		return OrderSendResult{RetCode: retcode.INVALID}
	}
	info, _ := e.catalog.Get(req.Symbol) // validated by orderCheckLocked above
	fillPrice := tick.Ask
	if req.Side == trade.Sell {
		fillPrice = tick.Bid
	}
	cur := e.clock.Current()

	orderTicket := e.nextTicket()
	dealTicket := e.nextTicket()
	positionTicket := e.nextTicket()

	order := &trade.Order{
		Ticket:        orderTicket,
		Action:        "order_send",
		Side:          req.Side,
		Volume:        req.Volume,
		VolumeInitial: req.Volume,
		Price:         fillPrice,
		SL:            req.SL,
		TP:            req.TP,
		TimeSetup:     cur.Time,
		TimeDone:      cur.Time,
		State:         "FILLED",
		Symbol:        req.Symbol,
		Magic:         req.Magic,
		Comment:       req.Comment,
	}
	deal := &trade.Deal{
		Ticket:     dealTicket,
		Order:      orderTicket,
		PositionID: positionTicket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Entry:      trade.EntryIn,
		Volume:     req.Volume,
		Price:      fillPrice,
		Time:       cur.Time,
		Magic:      req.Magic,
	}
	position := &trade.Position{
		Ticket:       positionTicket,
		Symbol:       req.Symbol,
		Group:        info.Group,
		Side:         req.Side,
		Volume:       req.Volume,
		PriceOpen:    fillPrice,
		SL:           req.SL,
		TP:           req.TP,
		PriceCurrent: fillPrice,
		Time:         cur.Time,
		TimeUpdate:   cur.Time,
		Magic:        req.Magic,
		Comment:      req.Comment,
		Identifier:   positionTicket,
	}

	e.orders.Set(orderTicket, order)
	e.deals.Set(dealTicket, deal)
	e.positions.Open(position, check.Margin)

	snap := e.ledger.Snapshot()
	e.ledger.UpdateAccount(snap.Profit, check.Margin, 0)

	if e.metrics != nil {
		e.metrics.OrdersSent.Inc()
	}
	logging.LogOrderSent(ctx, req.Symbol, positionTicket, req.Side.String(), req.Volume, fillPrice)

	return OrderSendResult{RetCode: retcode.DONE, Order: order, Deal: deal, Position: position, Volume: req.Volume, Price: fillPrice}
}

func (e *Engine) nextTicket() int64 {
	e.ticketSeq++
	return e.ticketSeq
}

// ClosePosition closes an open position manually (spec §4.5.5).
func (e *Engine) ClosePosition(ctx context.Context, ticket int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closePositionLocked(ctx, ticket, trade.ReasonManual)
}

func (e *Engine) closePositionLocked(ctx context.Context, ticket int64, reason trade.CloseReason) bool {
	pos, ok := e.positions.Get(ticket)
	if !ok || !e.positions.IsOpen(ticket) {
		return false
	}
	tick, err := e.tickAt(pos.Symbol)
	if err != nil {
		return false
	}
	closePrice := tick.Bid
	if pos.Side == trade.Sell {
		closePrice = tick.Ask
	}

	realized, err := e.OrderCalcProfit(ctx, pos.Side, pos.Symbol, pos.Volume, pos.PriceOpen, closePrice)
	if err != nil {
		return false
	}
	realized += pos.Swap

	cur := e.clock.Current()
	orderTicket := e.nextTicket()
	dealTicket := e.nextTicket()

	closeOrder := &trade.Order{
		Ticket:        orderTicket,
		Action:        "close_position",
		Side:          pos.Side.Opposite(),
		Volume:        pos.Volume,
		VolumeInitial: pos.Volume,
		Price:         closePrice,
		TimeSetup:     cur.Time,
		TimeDone:      cur.Time,
		State:         "FILLED",
		Symbol:        pos.Symbol,
		Magic:         pos.Magic,
	}
	deal := &trade.Deal{
		Ticket:     dealTicket,
		Order:      orderTicket,
		PositionID: ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Entry:      trade.EntryOut,
		Volume:     pos.Volume,
		Price:      closePrice,
		Profit:     realized,
		Time:       cur.Time,
		Magic:      pos.Magic,
		Reason:     reason,
	}
	e.orders.Set(orderTicket, closeOrder)
	e.deals.Set(dealTicket, deal)

	margin := e.positions.MarginFor(ticket)
	pos.Reason = reason
	pos.TimeUpdate = cur.Time
	pos.PriceCurrent = closePrice
	pos.Profit = realized

	snap := e.ledger.Snapshot()
	e.ledger.UpdateAccount(snap.Profit, -margin, realized)
	e.positions.Close(ticket)

	if e.metrics != nil {
		e.metrics.PositionsClosed.Inc()
		switch reason {
		case trade.ReasonSL:
			e.metrics.StopLossHits.Inc()
		case trade.ReasonTP:
			e.metrics.TakeProfitHits.Inc()
		}
	}
	logging.LogPositionClosed(ctx, pos.Symbol, ticket, reason.String(), realized)
	return true
}

// CloseAllOpen closes every currently open position with reason WRAP_UP,
// returning the number closed.
func (e *Engine) CloseAllOpen(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.positions.OpenPositionsIter()
	tickets := make([]int64, len(open))
	for i, p := range open {
		tickets[i] = p.Ticket
	}
	closed := 0
	for _, ticket := range tickets {
		if e.closePositionLocked(ctx, ticket, trade.ReasonWrapUp) {
			closed++
		}
	}
	return closed
}

// ModifyStops updates a position's SL/TP, validating against the symbol's
// minimum stop distance (spec §4.5.6). Returns false on any invalid input.
func (e *Engine) ModifyStops(ctx context.Context, ticket int64, sl, tp float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions.Get(ticket)
	if !ok || !e.positions.IsOpen(ticket) {
		return false
	}
	info, ok := e.catalog.Get(pos.Symbol)
	if !ok {
		return false
	}
	tick, err := e.tickAt(pos.Symbol)
	if err != nil {
		return false
	}

	current := tick.Bid
	if pos.Side == trade.Sell {
		current = tick.Ask
	}
	if sl != 0 && info.StopsLevel > 0 && math.Abs(current-sl) < info.StopsLevel {
		return false
	}
	if tp != 0 && info.StopsLevel > 0 && math.Abs(current-tp) < info.StopsLevel {
		return false
	}

	cur := e.clock.Current()
	pos.SL = sl
	pos.TP = tp
	pos.TimeUpdate = cur.Time

	orderTicket := e.nextTicket()
	sltpOrder := &trade.Order{
		Ticket:    orderTicket,
		Action:    "modify_stops",
		Side:      pos.Side,
		Volume:    pos.Volume,
		Price:     current,
		SL:        sl,
		TP:        tp,
		TimeSetup: cur.Time,
		TimeDone:  cur.Time,
		State:     "DONE",
		Symbol:    pos.Symbol,
		Magic:     pos.Magic,
	}
	e.orders.Set(orderTicket, sltpOrder)
	return true
}

// Tracker runs the per-tick maintenance pass (spec §4.5.7): mark every open
// position to market, trigger SL/TP closes, roll up the account's running
// profit, and check for a burn-out condition. Returns true when the session
// should stop.
func (e *Engine) Tracker(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	cur := e.clock.Current()

	var totalProfit float64
	for _, pos := range e.positions.OpenPositionsIter() {
		tick, err := e.tickAt(pos.Symbol)
		if err != nil {
			continue
		}

		closeSidePrice := tick.Bid
		if pos.Side == trade.Sell {
			closeSidePrice = tick.Ask
		}
		pos.PriceCurrent = closeSidePrice
		pos.TimeUpdate = cur.Time

		if profit, err := e.OrderCalcProfit(ctx, pos.Side, pos.Symbol, pos.Volume, pos.PriceOpen, closeSidePrice); err == nil {
			pos.Profit = profit
		}

		if reason, triggered := slTpReason(pos, tick); triggered {
			e.closePositionLocked(ctx, pos.Ticket, reason)
			continue
		}
		totalProfit += pos.Profit
	}

	snap := e.ledger.Snapshot()
	e.ledger.UpdateAccount(totalProfit, 0, 0)
	snap = e.ledger.Snapshot()
	e.updateDrawdownTracking(cur.Time, snap.Equity)

	if e.metrics != nil {
		e.metrics.Equity.Set(snap.Equity)
		e.metrics.Balance.Set(snap.Balance)
		e.metrics.Margin.Set(snap.Margin)
		e.metrics.MarginLevel.Set(snap.MarginLevel)
		e.metrics.OpenPositions.Set(float64(e.positions.PositionsTotal()))
		e.metrics.TrackerDuration.Observe(time.Since(start).Seconds())
		portfolio := e.portfolioStateLocked(snap)
		e.metrics.Drawdown.Set(portfolio.CurrentDrawdown)
		e.metrics.DailyLossDollar.Set(portfolio.DailyLossDollar)
	}
	logging.LogTrackerTick(ctx, cur.Time, e.positions.PositionsTotal(), snap.Equity, snap.Margin, time.Since(start))

	return e.checkAccountLocked(ctx, snap)
}

// slTpReason reports whether pos's stop-loss or take-profit triggers against
// tick, with SL winning when both trigger in the same tick.
func slTpReason(pos *trade.Position, tick pricing.Price) (trade.CloseReason, bool) {
	if pos.Side == trade.Buy {
		if pos.SL > 0 && tick.Bid <= pos.SL {
			return trade.ReasonSL, true
		}
		if pos.TP > 0 && tick.Bid >= pos.TP {
			return trade.ReasonTP, true
		}
		return 0, false
	}
	if pos.SL > 0 && tick.Ask >= pos.SL {
		return trade.ReasonSL, true
	}
	if pos.TP > 0 && tick.Ask <= pos.TP {
		return trade.ReasonTP, true
	}
	return 0, false
}

// CheckAccount reports whether the account has hit a stop-out condition,
// either the ledger's own burn-out rule or a portfolio-level risk breach
// (spec §4.4 Supplemental).
func (e *Engine) CheckAccount(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkAccountLocked(ctx, e.ledger.Snapshot())
}

func (e *Engine) checkAccountLocked(ctx context.Context, snap account.Info) bool {
	burnOut := e.ledger.BurnOut()
	if !burnOut && e.riskEnforcer != nil {
		portfolio := e.portfolioStateLocked(snap)
		violations := e.riskEnforcer.CheckPortfolio(portfolio)
		e.countViolations(violations)
		for _, v := range violations {
			if v.Code == risk.ViolationDrawdownHalt || v.Code == risk.ViolationDailyLossExceeded {
				burnOut = true
				break
			}
		}
	}
	if burnOut {
		logging.LogBurnOut(ctx, snap.Equity, snap.MarginLevel)
	}
	return burnOut
}

// countViolations publishes a risk-violation count per violation code, so the
// metrics surface reflects the enforcement path actually taken rather than
// just being a relabeled copy of the account gauges.
func (e *Engine) countViolations(violations risk.Violations) {
	if e.metrics == nil {
		return
	}
	for _, v := range violations {
		e.metrics.RiskViolations.Inc("code", string(v.Code))
	}
}

// updateDrawdownTracking rolls the running peak-equity/daily-loss baseline
// forward after each tick's account update, so the next CheckPortfolio call
// sees a real equity-curve-derived CurrentDrawdown/DailyLossDollar instead of
// a permanently-zero value.
func (e *Engine) updateDrawdownTracking(now int64, equity float64) {
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if day := dayStart(now); day != e.dayAnchorTime {
		e.dayAnchorTime = day
		e.dayAnchorEquity = equity
	}
}

// portfolioStateLocked builds the risk.PortfolioState CheckPortfolio
// evaluates, with CurrentDrawdown and DailyLossDollar fed from the engine's
// own running peak-equity and daily baseline rather than left at zero.
func (e *Engine) portfolioStateLocked(snap account.Info) risk.PortfolioState {
	state := risk.PortfolioState{
		NetLiquidation:  snap.Equity,
		OpenPositions:   e.positions.PositionsTotal(),
		DailyLossDollar: math.Max(0, e.dayAnchorEquity-snap.Equity),
	}
	if e.peakEquity > 0 {
		state.CurrentDrawdown = math.Max(0, (e.peakEquity-snap.Equity)/e.peakEquity)
	}
	return state
}

// WrapUp runs the session's termination hook (spec §4.5.8): optionally
// closing every open position, and returning how many were closed so a
// caller can compose the result report from Positions/Orders/Deals/Account.
func (e *Engine) WrapUp(ctx context.Context, closeOpenPositions bool) int {
	if !closeOpenPositions {
		return 0
	}
	return e.CloseAllOpen(ctx)
}

// Package bridge defines the optional broker-bridge contract the engine's
// order_calc_margin / order_calc_profit (spec §4.5.2) forward to when a
// session is configured for delegated mode (§4.8). The package ships the
// contract, a deterministic in-memory fake for tests, and a circuit-breaker
// wrapper — never a live terminal implementation, which stays an external
// collaborator.
package bridge

import (
	"context"
	"fmt"

	"github.com/quantrail/backtestcore/internal/symbol"
)

// ErrCrossUnavailable is returned (wrapped with call-specific context) when a
// delegated bridge call cannot be completed — either the fake has no entry
// for the requested symbol, or the resilience wrapper's breaker is open.
var ErrCrossUnavailable = fmt.Errorf("currency-cross-unavailable")

// MarginRequest carries the values order_calc_margin needs to delegate a
// margin computation to a bridge.
type MarginRequest struct {
	Side   string
	Symbol string
	Volume float64
	Price  float64
}

// ProfitRequest carries the values order_calc_profit needs to delegate a
// profit computation to a bridge.
type ProfitRequest struct {
	Side       string
	Symbol     string
	Volume     float64
	PriceOpen  float64
	PriceClose float64
}

// Bridge is the contract a live (or fake) broker terminal satisfies for
// delegated-mode margin/profit calculation and symbol lookup.
type Bridge interface {
	SymbolInfo(ctx context.Context, sym string) (symbol.Info, error)
	CalcMargin(ctx context.Context, req MarginRequest) (float64, error)
	CalcProfit(ctx context.Context, req ProfitRequest) (float64, error)
}

// FakeBridge is a deterministic in-memory Bridge backed by a symbol.Catalog
// and the same local-mode formulas the engine uses — suitable for exercising
// the delegated code path in tests without a live terminal.
type FakeBridge struct {
	catalog *symbol.Catalog
	calc    func(req MarginRequest, info symbol.Info) (float64, error)
	profit  func(req ProfitRequest, info symbol.Info) (float64, error)
}

// NewFakeBridge creates a FakeBridge over catalog using calcMargin/calcProfit
// as the underlying formulas (typically the engine's own local-mode funcs,
// so delegated and local mode agree in tests unless a test deliberately
// diverges them).
func NewFakeBridge(catalog *symbol.Catalog,
	calcMargin func(req MarginRequest, info symbol.Info) (float64, error),
	calcProfit func(req ProfitRequest, info symbol.Info) (float64, error),
) *FakeBridge {
	return &FakeBridge{catalog: catalog, calc: calcMargin, profit: calcProfit}
}

func (b *FakeBridge) SymbolInfo(_ context.Context, sym string) (symbol.Info, error) {
	info, ok := b.catalog.Get(sym)
	if !ok {
		return symbol.Info{}, fmt.Errorf("%w: unknown symbol %q", ErrCrossUnavailable, sym)
	}
	return info, nil
}

func (b *FakeBridge) CalcMargin(_ context.Context, req MarginRequest) (float64, error) {
	info, ok := b.catalog.Get(req.Symbol)
	if !ok {
		return 0, fmt.Errorf("%w: unknown symbol %q", ErrCrossUnavailable, req.Symbol)
	}
	return b.calc(req, info)
}

func (b *FakeBridge) CalcProfit(_ context.Context, req ProfitRequest) (float64, error) {
	info, ok := b.catalog.Get(req.Symbol)
	if !ok {
		return 0, fmt.Errorf("%w: unknown symbol %q", ErrCrossUnavailable, req.Symbol)
	}
	return b.profit(req, info)
}

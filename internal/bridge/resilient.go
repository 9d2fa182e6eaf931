package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/quantrail/backtestcore/internal/symbol"
)

// BreakerConfig configures the failure window a ResilientBridge trips on.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures uint32
}

// DefaultBreakerConfig returns the breaker tuning used when a session
// doesn't override it: trip after 5 consecutive failures (or a 60% failure
// ratio over at least 3 requests), half-open after 30s to probe recovery.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
	}
}

// ResilientBridge wraps a Bridge so that a misbehaving delegated terminal
// fails fast with ErrCrossUnavailable instead of hanging the tick loop
// (spec §4.8). Local-mode computation never goes through this type.
type ResilientBridge struct {
	inner Bridge
	cb    *gobreaker.CircuitBreaker[any]
}

// NewResilientBridge wraps inner with a circuit breaker tuned by cfg.
func NewResilientBridge(inner Bridge, cfg BreakerConfig) *ResilientBridge {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && (counts.ConsecutiveFailures >= cfg.MaxFailures || failureRatio >= 0.6)
		},
	}
	return &ResilientBridge{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (b *ResilientBridge) SymbolInfo(ctx context.Context, sym string) (symbol.Info, error) {
	result, err := b.execute(func() (any, error) { return b.inner.SymbolInfo(ctx, sym) })
	if err != nil {
		return symbol.Info{}, err
	}
	return result.(symbol.Info), nil
}

func (b *ResilientBridge) CalcMargin(ctx context.Context, req MarginRequest) (float64, error) {
	result, err := b.execute(func() (any, error) { return b.inner.CalcMargin(ctx, req) })
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

func (b *ResilientBridge) CalcProfit(ctx context.Context, req ProfitRequest) (float64, error) {
	result, err := b.execute(func() (any, error) { return b.inner.CalcProfit(ctx, req) })
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

// State reports the breaker's current state (closed/open/half-open), mostly
// for tests and diagnostics.
func (b *ResilientBridge) State() gobreaker.State { return b.cb.State() }

func (b *ResilientBridge) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCrossUnavailable, b.cb.Name(), err)
	}
	return result, nil
}

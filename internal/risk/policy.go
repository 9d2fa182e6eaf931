// Package risk provides versioned risk policy loading and enforcement for
// the backtest engine. A Policy is consulted from two points in the engine:
//
//  1. order_check — stop-distance and per-trade risk checks on the
//     hypothetical position, then the portfolio-level gates on the current
//     portfolio, before it is allowed to open.
//  2. check_account — portfolio-level gates (open positions, daily loss,
//     drawdown) evaluated once per tracker tick.
//
// A Violation carries a machine-readable Code so callers can log or route on
// specific breach types without string matching.
package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

// PortfolioConstraints mirrors the "portfolio_constraints" block of a policy file.
type PortfolioConstraints struct {
	MaxPositionSize   float64 `json:"max_position_size"`
	MaxPositions      int     `json:"max_positions"`
	MaxSectorExposure float64 `json:"max_sector_exposure"`
	MaxPortfolioRisk  float64 `json:"max_portfolio_risk"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	MinAccountSize    float64 `json:"min_account_size"`
}

// PositionLimits mirrors the "position_limits" block.
type PositionLimits struct {
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
	MinRiskPerTrade float64 `json:"min_risk_per_trade"`
	MaxLeverage     float64 `json:"max_leverage"`
	MinStopDistance float64 `json:"min_stop_distance"`
	MaxStopDistance float64 `json:"max_stop_distance"`
}

// Policy is the immutable, loaded risk policy, constructed once per session
// and passed read-only to the Enforcer.
type Policy struct {
	Portfolio   PortfolioConstraints `json:"portfolio_constraints"`
	Position    PositionLimits       `json:"position_limits"`
	SizingModel string               `json:"sizing_model"`
	LoadedFrom  string               `json:"-"`
	LoadedAt    time.Time            `json:"-"`
	Version     string               `json:"-"`
}

// LoadPolicy reads a JSON policy file and returns a validated Policy.
// It returns DefaultPolicy if path is empty or the file does not exist, so a
// backtest session can start without a policy file present.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("risk: read policy file %q: %w", path, err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("risk: parse policy file %q: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("risk: invalid policy in %q: %w", path, err)
	}

	p.LoadedFrom = path
	p.LoadedAt = time.Now().UTC()
	p.Version = policyVersion(data)
	return &p, nil
}

// DefaultPolicy returns a conservative policy used when no file is configured.
func DefaultPolicy() *Policy {
	p := &Policy{
		Portfolio: PortfolioConstraints{
			MaxPositionSize:  50_000,
			MaxPositions:     10,
			MaxSectorExposure: 0.30,
			MaxPortfolioRisk: 0.15,
			MaxDrawdown:      0.20,
			MinAccountSize:   10_000,
		},
		Position: PositionLimits{
			MaxRiskPerTrade: 0.02,
			MinRiskPerTrade: 0.005,
			MaxLeverage:     2.0,
			MinStopDistance: 0.01,
			MaxStopDistance: 0.10,
		},
		SizingModel: "fixed_fractional",
	}
	b, _ := json.Marshal(p)
	p.Version = policyVersion(b)
	return p
}

func (p *Policy) validate() error {
	var errs []string

	if p.Position.MaxRiskPerTrade <= 0 || p.Position.MaxRiskPerTrade > 1 {
		errs = append(errs, fmt.Sprintf("max_risk_per_trade must be in (0,1], got %.4f", p.Position.MaxRiskPerTrade))
	}
	if p.Position.MinStopDistance < 0 || (p.Position.MaxStopDistance > 0 && p.Position.MinStopDistance >= p.Position.MaxStopDistance) {
		errs = append(errs, fmt.Sprintf("min_stop_distance (%.4f) must be < max_stop_distance (%.4f)", p.Position.MinStopDistance, p.Position.MaxStopDistance))
	}
	if p.Portfolio.MaxPositions <= 0 {
		errs = append(errs, "max_positions must be > 0")
	}
	if p.Portfolio.MaxDrawdown <= 0 || p.Portfolio.MaxDrawdown > 1 {
		errs = append(errs, fmt.Sprintf("max_drawdown must be in (0,1], got %.4f", p.Portfolio.MaxDrawdown))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// policyVersion returns a short deterministic label for audit trails — not a
// security hash, just enough to tell two policies apart in a log line.
func policyVersion(data []byte) string {
	h := uint64(14695981039346656037)
	for _, b := range data {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return fmt.Sprintf("v%x", h&0xffffffffffff)
}

// ViolationCode is a machine-readable identifier for a specific breach.
type ViolationCode string

const (
	ViolationStopTooTight      ViolationCode = "STOP_TOO_TIGHT"
	ViolationStopTooWide       ViolationCode = "STOP_TOO_WIDE"
	ViolationRiskTooHigh       ViolationCode = "RISK_PER_TRADE_TOO_HIGH"
	ViolationRiskTooLow        ViolationCode = "RISK_PER_TRADE_TOO_LOW"
	ViolationPositionTooLarge  ViolationCode = "POSITION_VALUE_TOO_LARGE"
	ViolationTooManyPositions  ViolationCode = "TOO_MANY_OPEN_POSITIONS"
	ViolationDailyLossExceeded ViolationCode = "DAILY_LOSS_EXCEEDED"
	ViolationAccountTooSmall   ViolationCode = "ACCOUNT_TOO_SMALL"
	ViolationDrawdownHalt      ViolationCode = "DRAWDOWN_HALT"
)

// Violation describes a single policy breach.
type Violation struct {
	Code     ViolationCode
	Message  string
	Limit    float64
	Observed float64
}

func (v Violation) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (limit=%.4f, observed=%.4f)",
		v.Code, v.Message, v.Limit, v.Observed)
}

// Violations is a slice of Violation that also satisfies error by joining
// every breach into one message, so a single order_check call can report
// everything it tripped rather than just the first.
type Violations []Violation

func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, " | ")
}

// IsEmpty returns true when there are no violations.
func (vs Violations) IsEmpty() bool { return len(vs) == 0 }

// SignalInput carries the hypothetical-trade values order_check needs to
// evaluate per-trade risk gates before a position is opened.
type SignalInput struct {
	Symbol        string
	EntryPrice    float64
	StopLoss      float64
	AccountEquity float64
	PositionValue float64
}

// PortfolioState carries the current portfolio values check_account needs to
// evaluate portfolio-wide gates once per tracker tick.
type PortfolioState struct {
	NetLiquidation  float64
	OpenPositions   int
	DailyLossDollar float64
	CurrentDrawdown float64
}

// Enforcer applies a Policy to hypothetical signals and current portfolio
// state. Construct one with NewEnforcer and reuse it for the session.
type Enforcer struct {
	policy *Policy
}

// NewEnforcer creates an Enforcer backed by policy.
func NewEnforcer(policy *Policy) *Enforcer {
	return &Enforcer{policy: policy}
}

// Policy returns the enforcer's policy (read-only by convention).
func (e *Enforcer) Policy() *Policy { return e.policy }

// CheckSignal validates a hypothetical trade against the per-trade position
// limits. The returned Violations is nil when there are no breaches.
func (e *Enforcer) CheckSignal(sig SignalInput) Violations {
	var vs Violations
	p := e.policy.Position

	if sig.EntryPrice <= 0 {
		return vs
	}

	stopDist := math.Abs(sig.EntryPrice-sig.StopLoss) / sig.EntryPrice

	if p.MinStopDistance > 0 && stopDist < p.MinStopDistance {
		vs = append(vs, Violation{
			Code:     ViolationStopTooTight,
			Message:  fmt.Sprintf("stop distance %.2f%% is below minimum %.2f%%", stopDist*100, p.MinStopDistance*100),
			Limit:    p.MinStopDistance,
			Observed: stopDist,
		})
	}
	if p.MaxStopDistance > 0 && stopDist > p.MaxStopDistance {
		vs = append(vs, Violation{
			Code:     ViolationStopTooWide,
			Message:  fmt.Sprintf("stop distance %.2f%% exceeds maximum %.2f%%", stopDist*100, p.MaxStopDistance*100),
			Limit:    p.MaxStopDistance,
			Observed: stopDist,
		})
	}

	if sig.AccountEquity > 0 {
		riskDollar := math.Abs(sig.EntryPrice-sig.StopLoss) * (sig.PositionValue / sig.EntryPrice)
		riskFrac := riskDollar / sig.AccountEquity

		if p.MaxRiskPerTrade > 0 && riskFrac > p.MaxRiskPerTrade {
			vs = append(vs, Violation{
				Code:     ViolationRiskTooHigh,
				Message:  fmt.Sprintf("trade risk %.2f%% exceeds maximum %.2f%%", riskFrac*100, p.MaxRiskPerTrade*100),
				Limit:    p.MaxRiskPerTrade,
				Observed: riskFrac,
			})
		}
		if p.MinRiskPerTrade > 0 && riskFrac < p.MinRiskPerTrade {
			vs = append(vs, Violation{
				Code:     ViolationRiskTooLow,
				Message:  fmt.Sprintf("trade risk %.2f%% is below minimum %.2f%%", riskFrac*100, p.MinRiskPerTrade*100),
				Limit:    p.MinRiskPerTrade,
				Observed: riskFrac,
			})
		}
	}

	pc := e.policy.Portfolio
	if pc.MaxPositionSize > 0 && sig.PositionValue > pc.MaxPositionSize {
		vs = append(vs, Violation{
			Code:     ViolationPositionTooLarge,
			Message:  fmt.Sprintf("position value $%.2f exceeds maximum $%.2f", sig.PositionValue, pc.MaxPositionSize),
			Limit:    pc.MaxPositionSize,
			Observed: sig.PositionValue,
		})
	}

	return vs
}

// CheckPortfolio validates the current portfolio state against portfolio-level
// constraints. The engine evaluates these gates once per tracker tick and
// again in order_check before each new position.
func (e *Enforcer) CheckPortfolio(state PortfolioState) Violations {
	var vs Violations
	pc := e.policy.Portfolio

	if pc.MinAccountSize > 0 && state.NetLiquidation < pc.MinAccountSize {
		vs = append(vs, Violation{
			Code:     ViolationAccountTooSmall,
			Message:  fmt.Sprintf("account equity $%.2f is below minimum $%.2f", state.NetLiquidation, pc.MinAccountSize),
			Limit:    pc.MinAccountSize,
			Observed: state.NetLiquidation,
		})
	}

	if pc.MaxPositions > 0 && state.OpenPositions >= pc.MaxPositions {
		vs = append(vs, Violation{
			Code:     ViolationTooManyPositions,
			Message:  fmt.Sprintf("open positions %d has reached maximum %d", state.OpenPositions, pc.MaxPositions),
			Limit:    float64(pc.MaxPositions),
			Observed: float64(state.OpenPositions),
		})
	}

	if pc.MaxPortfolioRisk > 0 && state.NetLiquidation > 0 {
		dailyLossFrac := state.DailyLossDollar / state.NetLiquidation
		if dailyLossFrac >= pc.MaxPortfolioRisk {
			vs = append(vs, Violation{
				Code:     ViolationDailyLossExceeded,
				Message:  fmt.Sprintf("daily loss %.2f%% has reached portfolio risk limit %.2f%%", dailyLossFrac*100, pc.MaxPortfolioRisk*100),
				Limit:    pc.MaxPortfolioRisk,
				Observed: dailyLossFrac,
			})
		}
	}

	if pc.MaxDrawdown > 0 && state.CurrentDrawdown >= pc.MaxDrawdown {
		vs = append(vs, Violation{
			Code:     ViolationDrawdownHalt,
			Message:  fmt.Sprintf("drawdown %.2f%% has reached halt threshold %.2f%%", state.CurrentDrawdown*100, pc.MaxDrawdown*100),
			Limit:    pc.MaxDrawdown,
			Observed: state.CurrentDrawdown,
		})
	}

	return vs
}

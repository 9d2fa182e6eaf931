// Package report composes and emits the persisted Result report (spec §4.7,
// §6) built at the end of a session, after wrap_up: the final account
// snapshot, the full deals/orders history, the positions that were actually
// closed, and the RunRecord reproducibility metadata (spec §3 Supplemental).
// Grounded on internal/modules/backtest/engine.go's Result wrapper, which
// carries the same Seed/RunID/RunAt/DurationMs bookkeeping around a
// strategy-package result; here the wrapped payload is the engine's own
// trade history instead of strategies.BacktestResult.
package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/quantrail/backtestcore/internal/account"
	"github.com/quantrail/backtestcore/internal/trade"
)

// RunRecord is the reproducibility record attached to every controller
// session and carried through to the result report (spec §3 Supplemental).
type RunRecord struct {
	RunID         string    `json:"run_id"`
	Seed          int64     `json:"seed"`
	StrategyCount int       `json:"strategy_count"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMs    int64     `json:"duration_ms"`
}

// Result is the persisted JSON artifact built at the end of a session (spec §6).
type Result struct {
	Name            string            `json:"name"`
	Start           int64             `json:"start"`
	End             int64             `json:"end"`
	AccountFinal    account.Info      `json:"account_final"`
	Deals           []*trade.Deal     `json:"deals"`
	PositionsClosed []*trade.Position `json:"positions_closed"`
	Orders          []*trade.Order    `json:"orders"`
	Parameters      map[string]any    `json:"parameters"`
	Run             RunRecord         `json:"run"`
}

// BuildInput is the data a finished session hands to Build. AllPositions is
// every position the engine ever recorded, open or closed; OpenTickets
// narrows that down to the ones Build should exclude from PositionsClosed.
type BuildInput struct {
	Name         string
	Start        int64
	End          int64
	Account      account.Info
	AllPositions []*trade.Position
	OpenTickets  map[int64]struct{}
	Orders       []*trade.Order
	Deals        []*trade.Deal
	Parameters   map[string]any
	Run          RunRecord
}

// Build assembles a Result from a finished session's final state. Positions
// still open at session end (only possible when close_open_positions_on_exit
// is false) are excluded from PositionsClosed.
func Build(in BuildInput) Result {
	closed := make([]*trade.Position, 0, len(in.AllPositions))
	for _, pos := range in.AllPositions {
		if _, open := in.OpenTickets[pos.Ticket]; open {
			continue
		}
		closed = append(closed, pos)
	}

	return Result{
		Name:            in.Name,
		Start:           in.Start,
		End:             in.End,
		AccountFinal:    in.Account,
		Deals:           in.Deals,
		PositionsClosed: closed,
		Orders:          in.Orders,
		Parameters:      in.Parameters,
		Run:             in.Run,
	}
}

// WriteJSON emits the report as indented JSON to w (spec §4.7: an explicit,
// injected writer — a file, stdout, or a test buffer — never a hidden side
// effect of wrap_up itself).
func (r Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

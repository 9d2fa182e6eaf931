package backtest

import (
	"context"

	"github.com/quantrail/backtestcore/internal/audit"
	"github.com/quantrail/backtestcore/internal/engine"
)

// auditingEngine decorates *engine.Engine, recording every order_send /
// close_position / modify_stops outcome to an audit.Store before returning
// it to the calling strategy. Every strategy goroutine in a session shares
// one auditingEngine, so entries carry no per-strategy attribution — this
// module has no strategy-identity concept above the bare controller.Strategy
// function type.
type auditingEngine struct {
	*engine.Engine
	store *audit.Store
}

func (e *auditingEngine) OrderSend(ctx context.Context, req engine.OrderRequest) engine.OrderSendResult {
	res := e.Engine.OrderSend(ctx, req)

	entry := audit.Entry{Symbol: req.Symbol}
	if res.RetCode.OK() {
		entry.Decision = audit.DecisionEmit
		if res.Position != nil {
			entry.Ticket = res.Position.Ticket
		}
	} else {
		entry.Decision = audit.DecisionReject
		entry.Reason = res.RetCode.String()
	}
	e.store.Append(entry)
	return res
}

func (e *auditingEngine) ClosePosition(ctx context.Context, ticket int64) bool {
	ok := e.Engine.ClosePosition(ctx, ticket)
	if !ok {
		e.store.Append(audit.Entry{Decision: audit.DecisionReject, Ticket: ticket, Reason: "close_position failed"})
		return false
	}
	entry := audit.Entry{Decision: audit.DecisionClose, Ticket: ticket}
	for _, pos := range e.Engine.Positions() {
		if pos.Ticket == ticket {
			entry.Symbol = pos.Symbol
			entry.PnL = pos.Profit
			break
		}
	}
	e.store.Append(entry)
	return true
}

func (e *auditingEngine) ModifyStops(ctx context.Context, ticket int64, sl, tp float64) bool {
	ok := e.Engine.ModifyStops(ctx, ticket, sl, tp)
	entry := audit.Entry{Ticket: ticket}
	if ok {
		entry.Decision = audit.DecisionModify
	} else {
		entry.Decision = audit.DecisionReject
		entry.Reason = "modify_stops failed"
	}
	e.store.Append(entry)
	return ok
}

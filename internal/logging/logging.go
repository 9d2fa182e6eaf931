// Package logging provides the structured JSON-line event logger every
// component in this repository writes through (spec §10.1). Call sites never
// build their own free-text messages — they call a named event function so
// the field set for a given event shape is assembled in exactly one place.
package logging

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// Event writes one structured JSON-line log entry carrying level, event, the
// run-scoped RunInfo attached to ctx, and fields.
func Event(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.FlowID != "" {
		payload["flow_id"] = info.FlowID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogOrderSent records a successful order_send (spec §4.5.4).
func LogOrderSent(ctx context.Context, symbol string, ticket int64, side string, volume, price float64) {
	Event(ctx, "info", "order_sent", map[string]any{
		"symbol": symbol,
		"ticket": ticket,
		"side":   side,
		"volume": volume,
		"price":  price,
	})
}

// LogOrderRejected records an order_check / order_send failure with its retcode.
func LogOrderRejected(ctx context.Context, symbol string, retcode string, reason string) {
	Event(ctx, "warn", "order_rejected", map[string]any{
		"symbol":  symbol,
		"retcode": retcode,
		"reason":  reason,
	})
}

// LogPositionClosed records a close_position call, whether manual or
// tracker-triggered (spec §4.5.5, §4.5.7).
func LogPositionClosed(ctx context.Context, symbol string, ticket int64, reason string, realized float64) {
	Event(ctx, "info", "position_closed", map[string]any{
		"symbol":   symbol,
		"ticket":   ticket,
		"reason":   reason,
		"realized": realized,
	})
}

// LogTrackerTick records one tracker invocation's duration and post-update
// account snapshot (spec §4.5.7).
func LogTrackerTick(ctx context.Context, currentTime int64, openPositions int, equity, margin float64, duration time.Duration) {
	Event(ctx, "debug", "tracker_tick", map[string]any{
		"current_time":   currentTime,
		"open_positions": openPositions,
		"equity":         equity,
		"margin":         margin,
		"duration_ms":    duration.Milliseconds(),
	})
}

// LogBurnOut records check_account() signalling a stop-out / burn-out condition.
func LogBurnOut(ctx context.Context, equity, marginLevel float64) {
	Event(ctx, "error", "account_burn_out", map[string]any{
		"equity":       equity,
		"margin_level": marginLevel,
	})
}

// LogControllerShutdown records a stop_backtesting() or abort() shutdown path.
func LogControllerShutdown(ctx context.Context, path string, reason string) {
	Event(ctx, "info", "controller_shutdown", map[string]any{
		"path":   path,
		"reason": reason,
	})
}

// LogDatasetHashMismatch records a failed Registry.VerifyHash call (spec §11.1).
func LogDatasetHashMismatch(ctx context.Context, datasetID string, expected, got string) {
	Event(ctx, "error", "dataset_hash_mismatch", map[string]any{
		"dataset_id": datasetID,
		"expected":   expected,
		"got":        got,
	})
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}

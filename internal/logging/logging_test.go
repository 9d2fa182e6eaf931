package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func withCapturedOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := logger.Writer()
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(previous)
	})
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	raw := strings.TrimSpace(buf.String())
	if raw == "" {
		t.Fatal("expected log output")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

func TestEventWritesJSONWithRunInfo(t *testing.T) {
	buf := withCapturedOutput(t)

	ctx := WithRunInfo(context.Background(), RunInfo{
		RunID:  "run-1",
		FlowID: "flow-1",
		Symbol: "EURUSD",
	})

	Event(ctx, "info", "test_event", map[string]any{"value": 42})

	payload := decodeLine(t, buf)
	if payload["event"] != "test_event" {
		t.Fatalf("event = %#v, want test_event", payload["event"])
	}
	if payload["level"] != "info" {
		t.Fatalf("level = %#v, want info", payload["level"])
	}
	if payload["run_id"] != "run-1" || payload["flow_id"] != "flow-1" || payload["symbol"] != "EURUSD" {
		t.Fatalf("missing run info fields: %#v", payload)
	}
	if payload["value"].(float64) != 42 {
		t.Fatalf("value = %#v, want 42", payload["value"])
	}
}

func TestEventOmitsEmptyRunInfoFields(t *testing.T) {
	buf := withCapturedOutput(t)

	Event(context.Background(), "debug", "no_run_info", nil)

	payload := decodeLine(t, buf)
	for _, key := range []string{"run_id", "flow_id", "symbol"} {
		if _, ok := payload[key]; ok {
			t.Errorf("expected %q to be absent, payload=%#v", key, payload)
		}
	}
}

func TestEventStringifiesErrorFields(t *testing.T) {
	buf := withCapturedOutput(t)

	Event(context.Background(), "error", "failure", map[string]any{
		"err": errBoom,
	})

	payload := decodeLine(t, buf)
	if payload["err"] != "boom" {
		t.Fatalf("err field = %#v, want %q", payload["err"], "boom")
	}
}

func TestLogOrderSentFields(t *testing.T) {
	buf := withCapturedOutput(t)

	LogOrderSent(context.Background(), "EURUSD", 7, "buy", 1.0, 1.0950)

	payload := decodeLine(t, buf)
	if payload["event"] != "order_sent" {
		t.Fatalf("event = %#v, want order_sent", payload["event"])
	}
	if payload["ticket"].(float64) != 7 {
		t.Errorf("ticket = %#v, want 7", payload["ticket"])
	}
	if payload["side"] != "buy" {
		t.Errorf("side = %#v, want buy", payload["side"])
	}
}

func TestLogOrderRejectedFields(t *testing.T) {
	buf := withCapturedOutput(t)

	LogOrderRejected(context.Background(), "GBPUSD", "INVALID_STOPS", "stop too close")

	payload := decodeLine(t, buf)
	if payload["level"] != "warn" {
		t.Errorf("level = %#v, want warn", payload["level"])
	}
	if payload["retcode"] != "INVALID_STOPS" {
		t.Errorf("retcode = %#v, want INVALID_STOPS", payload["retcode"])
	}
}

func TestLogBurnOutIsErrorLevel(t *testing.T) {
	buf := withCapturedOutput(t)

	LogBurnOut(context.Background(), 10.0, 15.0)

	payload := decodeLine(t, buf)
	if payload["level"] != "error" {
		t.Errorf("level = %#v, want error", payload["level"])
	}
	if payload["margin_level"].(float64) != 15.0 {
		t.Errorf("margin_level = %#v, want 15.0", payload["margin_level"])
	}
}

type staticError string

func (e staticError) Error() string { return string(e) }

const errBoom = staticError("boom")

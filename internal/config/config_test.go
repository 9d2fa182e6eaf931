package config

import "testing"

func TestDecodeAppliesDefaults(t *testing.T) {
	cfg, err := Decode([]byte(`{"start": 1000, "end": 2000}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Speed != 60 {
		t.Errorf("Speed = %d, want 60", cfg.Speed)
	}
	if cfg.AccountInfo.Leverage != 100 {
		t.Errorf("Leverage = %v, want 100", cfg.AccountInfo.Leverage)
	}
	if cfg.AccountInfo.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", cfg.AccountInfo.Currency)
	}
	if cfg.AccountInfo.MarginSoSo != 50 {
		t.Errorf("MarginSoSo = %v, want 50", cfg.AccountInfo.MarginSoSo)
	}
	if cfg.StopTime != cfg.End {
		t.Errorf("StopTime = %d, want %d (defaults to End)", cfg.StopTime, cfg.End)
	}
	if !cfg.ShouldRestart() {
		t.Error("ShouldRestart() = false, want true by default")
	}
}

func TestDecodeRestartFalseIsPreserved(t *testing.T) {
	cfg, err := Decode([]byte(`{"start": 1000, "end": 2000, "restart": false}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.ShouldRestart() {
		t.Error("ShouldRestart() = true, want false when restart:false is explicit")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte(`{"speed": 60, "bogusField": 1}`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecodeExplicitValuesSurviveDefaulting(t *testing.T) {
	cfg, err := Decode([]byte(`{"speed": 1, "accountInfo": {"leverage": 50, "currency": "EUR"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Speed != 1 {
		t.Errorf("Speed = %d, want 1", cfg.Speed)
	}
	if cfg.AccountInfo.Leverage != 50 {
		t.Errorf("Leverage = %v, want 50", cfg.AccountInfo.Leverage)
	}
	if cfg.AccountInfo.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", cfg.AccountInfo.Currency)
	}
}

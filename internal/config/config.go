// Package config decodes the plain-JSON backtest configuration (spec §6,
// §10.4): range bounds, tick speed, resume/persistence flags, and the seed
// account values a run starts from.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// AccountSeed seeds the ledger's starting values (spec §3 Account).
type AccountSeed struct {
	Login      int64   `json:"login"`
	Balance    float64 `json:"balance"`
	Leverage   float64 `json:"leverage"`
	Currency   string  `json:"currency"`
	TradeMode  string  `json:"tradeMode"`
	MarginSoSo float64 `json:"marginSoSo"` // stop-out margin level percentage
}

// Config is the full backtest run configuration (spec §6 table).
type Config struct {
	Speed                    int64       `json:"speed"`
	Start                    int64       `json:"start"`
	End                      int64       `json:"end"`
	StopTime                 int64       `json:"stopTime"`
	Restart                  *bool       `json:"restart"`
	UseTerminal              bool        `json:"useTerminal"`
	Preload                  bool        `json:"preload"`
	CloseOpenPositionsOnExit bool        `json:"closeOpenPositionsOnExit"`
	AssignToConfig           bool        `json:"assignToConfig"`
	AccountInfo              AccountSeed `json:"accountInfo"`
}

// ShouldRestart reports whether the run starts fresh rather than resuming
// from a loaded snapshot. Defaults to true when unset.
func (c Config) ShouldRestart() bool {
	return c.Restart == nil || *c.Restart
}

// Load reads and decodes a Config from path, rejecting unknown fields so a
// typo in a config file fails loudly instead of silently defaulting.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read backtest config: %w", err)
	}
	return Decode(raw)
}

// Decode parses raw JSON bytes into a defaulted Config.
func Decode(raw []byte) (Config, error) {
	var cfg Config
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse backtest config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Speed == 0 {
		c.Speed = 60
	}
	if c.AccountInfo.Leverage == 0 {
		c.AccountInfo.Leverage = 100
	}
	if c.AccountInfo.Currency == "" {
		c.AccountInfo.Currency = "USD"
	}
	if c.AccountInfo.MarginSoSo == 0 {
		c.AccountInfo.MarginSoSo = 50
	}
	if c.StopTime == 0 {
		c.StopTime = c.End
	}
}

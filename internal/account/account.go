// Package account implements the Account Ledger (spec §3 Account, §4.4):
// the single mutation point for balance/equity/margin state, serialized
// under a reentrant lock so Deposit and Withdraw can call into
// UpdateAccount while already holding it without deadlocking.
package account

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// ErrInsufficientBalance is returned by Withdraw when amount exceeds the
// current balance.
var ErrInsufficientBalance = fmt.Errorf("insufficient-balance")

// Info is the account snapshot described in spec §3.
type Info struct {
	Login       int64
	Balance     float64
	Equity      float64
	Margin      float64
	MarginFree  float64
	MarginLevel float64
	Profit      float64
	Leverage    float64
	Currency    string
	TradeMode   string
	MarginSoSo  float64 // stop-out margin level percentage
}

// Ledger owns the mutable Account state and exposes mutation solely through
// UpdateAccount, Deposit, and Withdraw.
type Ledger struct {
	mu   reentrantMutex
	info Info
}

// New creates a Ledger seeded with the given account values. Equity,
// MarginFree, and MarginLevel are recomputed from the invariants in §3
// regardless of what the caller passed for them.
func New(seed Info) *Ledger {
	l := &Ledger{info: seed}
	l.recompute()
	return l
}

// Snapshot returns a copy of the current account state.
func (l *Ledger) Snapshot() Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// UpdateAccount is the sole mutation primitive (spec §4.4). profit is a
// replacement value (the tracker's running total of open-position profit),
// not a delta; marginDelta and gainDelta are deltas.
func (l *Ledger) UpdateAccount(profit, marginDelta, gainDelta float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.info.Balance += gainDelta
	l.info.Margin += marginDelta
	l.info.Profit = profit
	l.recompute()
}

// Deposit credits amount to the balance. Holds the ledger lock across the
// read of the current profit and the call into UpdateAccount, relying on
// the lock's reentrancy so the two don't race against a concurrent tracker
// update.
func (l *Ledger) Deposit(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.UpdateAccount(l.info.Profit, 0, amount)
}

// Withdraw debits amount from the balance. Fails ErrInsufficientBalance if
// amount exceeds the current balance.
func (l *Ledger) Withdraw(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > l.info.Balance {
		return ErrInsufficientBalance
	}
	l.UpdateAccount(l.info.Profit, 0, -amount)
	return nil
}

// BurnOut reports whether the account has hit a stop-out condition: equity
// at or below zero, or margin level below the account's configured
// stop-out percentage.
func (l *Ledger) BurnOut() bool {
	snap := l.Snapshot()
	if snap.Equity <= 0 {
		return true
	}
	if snap.Margin > 0 && snap.MarginLevel < snap.MarginSoSo {
		return true
	}
	return false
}

// recompute derives Equity, MarginFree, and MarginLevel from Balance,
// Profit, and Margin per the §3 invariants. Caller must hold l.mu.
func (l *Ledger) recompute() {
	l.info.Equity = l.info.Balance + l.info.Profit
	l.info.MarginFree = l.info.Equity - l.info.Margin
	if l.info.Margin > 0 {
		l.info.MarginLevel = (l.info.Equity / l.info.Margin) * 100
	} else {
		l.info.MarginLevel = 0
	}
}

// reentrantMutex allows the same logical call chain (e.g. Withdraw calling
// into UpdateAccount) to re-enter from the same goroutine without
// deadlocking, while still serializing access across goroutines.
type reentrantMutex struct {
	mu    sync.Mutex
	owner int64
	depth int
}

func (m *reentrantMutex) Lock() {
	gid := goroutineID()
	if m.depth > 0 && m.owner == gid {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner = gid
	m.depth = 1
}

func (m *reentrantMutex) Unlock() {
	gid := goroutineID()
	if m.owner != gid || m.depth == 0 {
		panic("account: Unlock called without a matching Lock on this goroutine")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.mu.Unlock()
	}
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(string(fields[1]), 10, 64)
	return id
}

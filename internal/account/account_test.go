package account

import (
	"errors"
	"sync"
	"testing"
)

func seedLedger() *Ledger {
	return New(Info{
		Login:      1,
		Balance:    10_000,
		Leverage:   100,
		Currency:   "USD",
		MarginSoSo: 50,
	})
}

func TestNewRecomputesInvariants(t *testing.T) {
	l := seedLedger()
	snap := l.Snapshot()
	if snap.Equity != 10_000 {
		t.Errorf("Equity = %v, want 10000", snap.Equity)
	}
	if snap.MarginFree != 10_000 {
		t.Errorf("MarginFree = %v, want 10000", snap.MarginFree)
	}
	if snap.MarginLevel != 0 {
		t.Errorf("MarginLevel = %v, want 0 (no margin used)", snap.MarginLevel)
	}
}

func TestUpdateAccountRecomputesEquityAndMarginLevel(t *testing.T) {
	l := seedLedger()
	l.UpdateAccount(48.0, 1_100.0, 0)

	snap := l.Snapshot()
	if snap.Profit != 48.0 {
		t.Errorf("Profit = %v, want 48.0", snap.Profit)
	}
	if snap.Equity != 10_048.0 {
		t.Errorf("Equity = %v, want 10048.0", snap.Equity)
	}
	if snap.Margin != 1_100.0 {
		t.Errorf("Margin = %v, want 1100.0", snap.Margin)
	}
	wantLevel := (10_048.0 / 1_100.0) * 100
	if snap.MarginLevel != wantLevel {
		t.Errorf("MarginLevel = %v, want %v", snap.MarginLevel, wantLevel)
	}
}

func TestDepositIncreasesBalanceAndEquity(t *testing.T) {
	l := seedLedger()
	l.Deposit(500)
	snap := l.Snapshot()
	if snap.Balance != 10_500 {
		t.Errorf("Balance = %v, want 10500", snap.Balance)
	}
	if snap.Equity != 10_500 {
		t.Errorf("Equity = %v, want 10500", snap.Equity)
	}
}

func TestWithdrawSucceedsWithinBalance(t *testing.T) {
	l := seedLedger()
	if err := l.Withdraw(10_000); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if snap := l.Snapshot(); snap.Balance != 0 {
		t.Errorf("Balance = %v, want 0", snap.Balance)
	}
}

func TestWithdrawFailsWhenExceedsBalance(t *testing.T) {
	l := seedLedger()
	err := l.Withdraw(10_000.01)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if snap := l.Snapshot(); snap.Balance != 10_000 {
		t.Errorf("Balance changed on failed withdraw: %v", snap.Balance)
	}
}

func TestBurnOutOnZeroEquity(t *testing.T) {
	l := seedLedger()
	l.UpdateAccount(-10_000, 0, 0)
	if !l.BurnOut() {
		t.Error("expected BurnOut() true when equity <= 0")
	}
}

func TestBurnOutOnLowMarginLevel(t *testing.T) {
	l := seedLedger()
	l.UpdateAccount(0, 9_000, 0) // margin_level = (10000/9000)*100 ≈ 111, above 50 so not burned yet
	if l.BurnOut() {
		t.Fatal("unexpected burn-out at margin_level ~111")
	}
	l.UpdateAccount(-9_500, 9_000, 0) // equity drops to 500, margin now 18000, margin_level ≈ 2.8 < 50
	if !l.BurnOut() {
		t.Error("expected BurnOut() true when margin_level below stop-out")
	}
}

func TestConcurrentUpdatesSerializeCorrectly(t *testing.T) {
	l := seedLedger()
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Deposit(1)
		}()
	}
	wg.Wait()

	if snap := l.Snapshot(); snap.Balance != 10_000+n {
		t.Errorf("Balance = %v, want %v", snap.Balance, 10_000+n)
	}
}

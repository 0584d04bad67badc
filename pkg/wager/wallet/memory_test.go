package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
)

func entry(wagerID, userID, kind string, amount decimal.Decimal) ledger.Entry {
	return ledger.Entry{
		WagerID: wagerID,
		UserID:  userID,
		Kind:    kind,
		Amount:  amount,
		At:      time.Now(),
	}
}

func TestMemory_DepositAndBalance(t *testing.T) {
	m := NewMemory()
	if !m.Balance("alice").IsZero() {
		t.Error("fresh wallet should have zero balance")
	}
	m.Deposit("alice", decimal.NewFromInt(100))
	m.Deposit("alice", decimal.NewFromFloat(25.5))
	if !m.Balance("alice").Equal(decimal.NewFromFloat(125.5)) {
		t.Errorf("expected 125.5, got %s", m.Balance("alice"))
	}
}

func TestMemory_Debit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Deposit("alice", decimal.NewFromInt(50))

	if err := m.Debit(ctx, "alice", decimal.NewFromInt(30), entry("w1", "alice", "debit", decimal.NewFromInt(30))); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if !m.Balance("alice").Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected 20, got %s", m.Balance("alice"))
	}

	err := m.Debit(ctx, "alice", decimal.NewFromInt(21), entry("w1", "alice", "debit", decimal.NewFromInt(21)))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if !m.Balance("alice").Equal(decimal.NewFromInt(20)) {
		t.Error("failed debit must not change the balance")
	}

	if err := m.Debit(ctx, "alice", decimal.Zero, entry("w1", "alice", "debit", decimal.Zero)); err == nil {
		t.Error("zero debit should fail")
	}
}

func TestMemory_Credit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Credit(ctx, "bob", decimal.NewFromInt(10), entry("w1", "bob", "credit", decimal.NewFromInt(10))); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if !m.Balance("bob").Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10, got %s", m.Balance("bob"))
	}

	// Zero credits are allowed, negative are not.
	if err := m.Credit(ctx, "bob", decimal.Zero, entry("w1", "bob", "credit", decimal.Zero)); err != nil {
		t.Errorf("zero credit should be a no-op, got %v", err)
	}
	if err := m.Credit(ctx, "bob", decimal.NewFromInt(-1), entry("w1", "bob", "credit", decimal.NewFromInt(-1))); err == nil {
		t.Error("negative credit should fail")
	}
}

func TestMemory_JournalFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Deposit("alice", decimal.NewFromInt(100))

	_ = m.Debit(ctx, "alice", decimal.NewFromInt(10), entry("w1", "alice", "debit", decimal.NewFromInt(10)))
	_ = m.Credit(ctx, "alice", decimal.NewFromInt(5), entry("w2", "alice", "credit", decimal.NewFromInt(5)))
	_ = m.Debit(ctx, "alice", decimal.NewFromInt(20), entry("w1", "alice", "debit", decimal.NewFromInt(20)))

	if got := len(m.Entries("")); got != 3 {
		t.Errorf("expected 3 journal entries, got %d", got)
	}
	w1 := m.Entries("w1")
	if len(w1) != 2 {
		t.Fatalf("expected 2 entries for w1, got %d", len(w1))
	}
	// Oldest first.
	if !w1[0].Amount.Equal(decimal.NewFromInt(10)) || !w1[1].Amount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("journal out of order: %s then %s", w1[0].Amount, w1[1].Amount)
	}
}

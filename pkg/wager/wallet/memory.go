// Package wallet provides implementations of the ledger's wallet port.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/arenastake/wagerd/pkg/wager/ledger"
)

// Memory is an in-process wallet: mutex-guarded balances plus an
// append-only journal of every balance change. It backs tests and the
// daemon's standalone mode; production deployments substitute their own
// implementation of ledger.Wallet.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	journal  []ledger.Entry
}

// NewMemory creates an empty in-memory wallet.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]decimal.Decimal)}
}

// Deposit adds spendable funds to a user outside of any wager. Used to
// seed accounts; not part of the ledger port.
func (m *Memory) Deposit(userID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = m.balances[userID].Add(amount)
}

// Balance returns the user's spendable balance.
func (m *Memory) Balance(userID string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[userID]
}

// Debit removes amount from the user's balance and records the entry in
// the same critical section. Fails with ledger.ErrInsufficientFunds when
// the balance does not cover the amount.
func (m *Memory) Debit(ctx context.Context, userID string, amount decimal.Decimal, entry ledger.Entry) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balances[userID]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, need %s", ledger.ErrInsufficientFunds, bal, amount)
	}
	m.balances[userID] = bal.Sub(amount)
	m.journal = append(m.journal, entry)
	return nil
}

// Credit adds amount to the user's balance and records the entry in the
// same critical section.
func (m *Memory) Credit(ctx context.Context, userID string, amount decimal.Decimal, entry ledger.Entry) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit amount must not be negative, got %s", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[userID] = m.balances[userID].Add(amount)
	m.journal = append(m.journal, entry)
	return nil
}

// Entries returns a copy of the journal, oldest first. An empty wagerID
// matches all wagers.
func (m *Memory) Entries(wagerID string) []ledger.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Entry, 0, len(m.journal))
	for _, e := range m.journal {
		if wagerID == "" || e.WagerID == wagerID {
			out = append(out, e)
		}
	}
	return out
}

// Package memory provides an in-memory ledger for tests and single-node
// runs without Redis.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/davidbz/creditmeter/internal/ledger"
)

type account struct {
	balance  decimal.Decimal
	consumed decimal.Decimal
}

// Ledger stores account balances in memory. The mutex makes every debit a
// single indivisible check-and-decrement step.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

// New creates a new in-memory ledger.
func New() *Ledger {
	return &Ledger{
		mu:       sync.RWMutex{},
		accounts: make(map[string]*account),
	}
}

// Provision creates an account with an initial balance.
func (l *Ledger) Provision(_ context.Context, accountID string, initial decimal.Decimal) error {
	if initial.IsNegative() {
		return fmt.Errorf("initial balance cannot be negative: %s", initial)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[accountID]; exists {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, accountID)
	}

	l.accounts[accountID] = &account{
		balance:  initial,
		consumed: decimal.Zero,
	}
	return nil
}

// TryDebit atomically decrements the balance if it covers the amount.
func (l *Ledger) TryDebit(
	_ context.Context,
	accountID string,
	amount decimal.Decimal,
) (ledger.Snapshot, error) {
	if amount.IsNegative() {
		return ledger.Snapshot{}, fmt.Errorf("debit amount cannot be negative: %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, exists := l.accounts[accountID]
	if !exists {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	}

	if acct.balance.LessThan(amount) {
		return ledger.Snapshot{}, fmt.Errorf("%w: balance %s below %s",
			ledger.ErrInsufficientFunds, acct.balance, amount)
	}

	acct.balance = acct.balance.Sub(amount)
	acct.consumed = acct.consumed.Add(amount)

	return ledger.Snapshot{
		Balance:       acct.balance,
		TotalConsumed: acct.consumed,
	}, nil
}

// GetBalance returns a snapshot of the account.
func (l *Ledger) GetBalance(_ context.Context, accountID string) (ledger.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, exists := l.accounts[accountID]
	if !exists {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	}

	return ledger.Snapshot{
		Balance:       acct.balance,
		TotalConsumed: acct.consumed,
	}, nil
}

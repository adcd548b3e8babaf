// Package ledger defines the account balance store. The balance is the
// only mutable shared state in the engine and it moves exclusively
// through TryDebit's atomic conditional decrement; implementations must
// never check the balance and write it as two separate store operations.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when the balance is below the
	// requested debit. State is left untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound is returned for debits or reads against an
	// account that was never provisioned.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when provisioning an account twice.
	ErrAccountExists = errors.New("account already exists")
)

// Snapshot is a point-in-time view of one account.
type Snapshot struct {
	Balance       decimal.Decimal
	TotalConsumed decimal.Decimal
}

// Ledger stores per-account credit balances.
//
// TryDebit must be atomic and serializable with respect to concurrent
// calls on the same account: it reads the balance, and only if it covers
// the amount, decrements it and increments the lifetime-consumed counter
// as one indivisible step. No partially debited state may ever be
// observable. Debits on different accounts are independent.
type Ledger interface {
	// Provision creates an account with an initial balance. It fails
	// with ErrAccountExists rather than resetting an existing account.
	Provision(ctx context.Context, accountID string, initial decimal.Decimal) error

	// TryDebit atomically decrements the balance by amount and
	// increments total consumed, returning the post-debit snapshot.
	// Returns ErrInsufficientFunds without changing state when the
	// balance does not cover the amount.
	TryDebit(ctx context.Context, accountID string, amount decimal.Decimal) (Snapshot, error)

	// GetBalance returns a snapshot of the account. Reads carry no
	// atomicity contract beyond read-your-writes for the same caller.
	GetBalance(ctx context.Context, accountID string) (Snapshot, error)
}

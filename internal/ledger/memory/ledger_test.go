package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/creditmeter/internal/ledger"
	"github.com/davidbz/creditmeter/internal/ledger/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProvisionAndGetBalance(t *testing.T) {
	led := memory.New()
	ctx := context.Background()

	require.NoError(t, led.Provision(ctx, "acct", dec("500")))

	snap, err := led.GetBalance(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, "500", snap.Balance.String())
	require.True(t, snap.TotalConsumed.IsZero())
}

func TestProvision_Duplicate(t *testing.T) {
	led := memory.New()
	ctx := context.Background()

	require.NoError(t, led.Provision(ctx, "acct", dec("500")))
	require.ErrorIs(t, led.Provision(ctx, "acct", dec("100")), ledger.ErrAccountExists)

	// The original balance must be untouched.
	snap, err := led.GetBalance(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, "500", snap.Balance.String())
}

func TestTryDebit(t *testing.T) {
	led := memory.New()
	ctx := context.Background()
	require.NoError(t, led.Provision(ctx, "acct", dec("10")))

	snap, err := led.TryDebit(ctx, "acct", dec("2.5"))
	require.NoError(t, err)
	require.Equal(t, "7.5", snap.Balance.String())
	require.Equal(t, "2.5", snap.TotalConsumed.String())

	// Exact drain to zero is allowed.
	snap, err = led.TryDebit(ctx, "acct", dec("7.5"))
	require.NoError(t, err)
	require.True(t, snap.Balance.IsZero())
	require.Equal(t, "10", snap.TotalConsumed.String())
}

func TestTryDebit_InsufficientFunds(t *testing.T) {
	led := memory.New()
	ctx := context.Background()
	require.NoError(t, led.Provision(ctx, "acct", dec("3")))

	_, err := led.TryDebit(ctx, "acct", dec("3.5"))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// A rejected debit leaves both counters untouched.
	snap, err := led.GetBalance(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, "3", snap.Balance.String())
	require.True(t, snap.TotalConsumed.IsZero())
}

func TestTryDebit_UnknownAccount(t *testing.T) {
	led := memory.New()

	_, err := led.TryDebit(context.Background(), "ghost", dec("1"))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestTryDebit_ConcurrentTwoForOne(t *testing.T) {
	// Two concurrent 7-credit debits against a balance of 10: exactly one
	// commits and the loser sees insufficient funds.
	led := memory.New()
	ctx := context.Background()
	require.NoError(t, led.Provision(ctx, "acct", dec("10")))

	var wg sync.WaitGroup
	var committed, rejected atomic.Int64
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := led.TryDebit(ctx, "acct", dec("7"))
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, ledger.ErrInsufficientFunds):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, committed.Load())
	require.EqualValues(t, 1, rejected.Load())

	snap, err := led.GetBalance(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, "3", snap.Balance.String())
}

func TestTryDebit_ConcurrentNoLostUpdates(t *testing.T) {
	// N concurrent debits of c against balance B commit exactly
	// floor(B/c) times and leave B - floor(B/c)*c behind.
	led := memory.New()
	ctx := context.Background()
	require.NoError(t, led.Provision(ctx, "acct", dec("100")))

	cost := dec("7")
	const attempts = 40

	var wg sync.WaitGroup
	var committed atomic.Int64
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := led.TryDebit(ctx, "acct", cost)
			if err == nil {
				committed.Add(1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	}
	require.EqualValues(t, 14, committed.Load()) // floor(100/7)

	snap, err := led.GetBalance(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, "2", snap.Balance.String()) // 100 - 14*7
	require.Equal(t, "98", snap.TotalConsumed.String())
}

func TestAccountsIndependent(t *testing.T) {
	led := memory.New()
	ctx := context.Background()
	require.NoError(t, led.Provision(ctx, "a", dec("10")))
	require.NoError(t, led.Provision(ctx, "b", dec("20")))

	_, err := led.TryDebit(ctx, "a", dec("4"))
	require.NoError(t, err)

	snap, err := led.GetBalance(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "20", snap.Balance.String())
}

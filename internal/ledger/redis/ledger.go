// Package redis implements the account ledger on Redis.
//
// Balance and lifetime-consumed live as integer milli-credits in one hash
// per account. TryDebit runs a Lua script so the precondition check and
// both counter updates execute as a single atomic store operation; the
// classic check-then-act race between concurrent debits for one account
// cannot occur. Integer HINCRBY keeps the arithmetic exact.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/davidbz/creditmeter/internal/ledger"
	"github.com/davidbz/creditmeter/internal/observability"
)

const keyPrefix = "credits:account:"

// milliPlaces is the stored precision: one credit = 1000 stored units.
const milliPlaces = 3

// debitScript checks the balance and, only if it covers the amount,
// decrements it and increments consumed in the same script execution.
// Reply: {status, balance, consumed} where status is 1 on commit, 0 on
// insufficient funds, -1 when the account does not exist.
var debitScript = redis.NewScript(`
local balance = redis.call('HGET', KEYS[1], 'balance')
if balance == false then
  return {-1, 0, 0}
end
balance = tonumber(balance)
local amount = tonumber(ARGV[1])
if balance < amount then
  local consumed = tonumber(redis.call('HGET', KEYS[1], 'consumed')) or 0
  return {0, balance, consumed}
end
local newBalance = redis.call('HINCRBY', KEYS[1], 'balance', '-' .. ARGV[1])
local consumed = redis.call('HINCRBY', KEYS[1], 'consumed', ARGV[1])
return {1, newBalance, consumed}
`)

// provisionScript creates the account hash only if it does not exist.
var provisionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'balance', ARGV[1], 'consumed', 0)
return 1
`)

// Ledger is a Redis-backed account ledger.
type Ledger struct {
	client *redis.Client
}

// New creates a new Redis ledger.
func New(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

func accountKey(accountID string) string {
	return keyPrefix + accountID
}

// toMilli converts a credit amount to stored integer milli-credits. The
// amount must be exact at three decimal places; charged amounts are
// step-rounded upstream so this only rejects misuse.
func toMilli(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(milliPlaces)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s is not representable in milli-credits", d)
	}
	return scaled.IntPart(), nil
}

func fromMilli(v int64) decimal.Decimal {
	return decimal.New(v, -milliPlaces)
}

// Provision creates an account with an initial balance.
func (l *Ledger) Provision(ctx context.Context, accountID string, initial decimal.Decimal) error {
	if initial.IsNegative() {
		return fmt.Errorf("initial balance cannot be negative: %s", initial)
	}
	milli, err := toMilli(initial)
	if err != nil {
		return err
	}

	created, err := provisionScript.Run(ctx, l.client, []string{accountKey(accountID)}, milli).Int()
	if err != nil {
		return fmt.Errorf("failed to provision account: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAccountExists, accountID)
	}

	return nil
}

// TryDebit atomically decrements the balance if it covers the amount.
func (l *Ledger) TryDebit(
	ctx context.Context,
	accountID string,
	amount decimal.Decimal,
) (ledger.Snapshot, error) {
	if amount.IsNegative() {
		return ledger.Snapshot{}, fmt.Errorf("debit amount cannot be negative: %s", amount)
	}
	milli, err := toMilli(amount)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	reply, err := debitScript.Run(ctx, l.client, []string{accountKey(accountID)}, milli).Int64Slice()
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("debit script failed: %w", err)
	}
	if len(reply) != 3 {
		return ledger.Snapshot{}, fmt.Errorf("unexpected debit script reply of length %d", len(reply))
	}

	status, balance, consumed := reply[0], reply[1], reply[2]
	switch status {
	case 1:
		observability.FromContext(ctx).Debug("debit committed",
			observability.String("account_id", accountID),
			observability.String("amount", amount.String()),
			observability.String("balance", fromMilli(balance).String()),
		)
		return ledger.Snapshot{
			Balance:       fromMilli(balance),
			TotalConsumed: fromMilli(consumed),
		}, nil
	case 0:
		return ledger.Snapshot{}, fmt.Errorf("%w: balance %s below %s",
			ledger.ErrInsufficientFunds, fromMilli(balance), amount)
	case -1:
		return ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	default:
		return ledger.Snapshot{}, fmt.Errorf("unexpected debit script status %d", status)
	}
}

// GetBalance returns a snapshot of the account.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (ledger.Snapshot, error) {
	fields, err := l.client.HMGet(ctx, accountKey(accountID), "balance", "consumed").Result()
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("failed to read account: %w", err)
	}
	if len(fields) != 2 || fields[0] == nil {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, accountID)
	}

	balance, err := parseMilliField(fields[0])
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("corrupt balance for account %s: %w", accountID, err)
	}

	consumed := int64(0)
	if fields[1] != nil {
		consumed, err = parseMilliField(fields[1])
		if err != nil {
			return ledger.Snapshot{}, fmt.Errorf("corrupt consumed counter for account %s: %w", accountID, err)
		}
	}

	return ledger.Snapshot{
		Balance:       fromMilli(balance),
		TotalConsumed: fromMilli(consumed),
	}, nil
}

func parseMilliField(field interface{}) (int64, error) {
	s, ok := field.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected field type %T", field)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return v, nil
}

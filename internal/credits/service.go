package credits

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/davidbz/creditmeter/internal/catalog"
	"github.com/davidbz/creditmeter/internal/ledger"
	"github.com/davidbz/creditmeter/internal/observability"
)

// EventPublisher publishes events for observability.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// DeductionRequest asks to debit one account for one unit of work.
type DeductionRequest struct {
	AccountID string
	Operation string
	Usage     Usage
}

// DeductionResult is the outcome of a committed (or zero-cost) deduction.
type DeductionResult struct {
	Charged       decimal.Decimal
	Balance       decimal.Decimal
	TotalConsumed decimal.Decimal
}

// Service orchestrates a deduction: catalog lookup, cost resolution,
// rounding, then the ledger's atomic debit. It performs no I/O of its own
// beyond the ledger; retrying after a transient ledger failure is safe as
// long as the caller has not observed a committed result (the engine does
// not deduplicate retried requests).
type Service struct {
	catalog *catalog.Catalog
	ledger  ledger.Ledger
	events  EventPublisher
}

// NewService creates a new metering service (DI constructor).
func NewService(cat *catalog.Catalog, led ledger.Ledger, events EventPublisher) *Service {
	return &Service{
		catalog: cat,
		ledger:  led,
		events:  events,
	}
}

// Catalog returns the pricing catalog the service bills against.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Deduct resolves the cost of the requested work and atomically debits
// the account. Failures are typed: ErrUnknownOperation, ErrInvalidVariant
// and ErrInvalidUsage are caller bugs, ledger.ErrInsufficientFunds is the
// expected user-facing rejection, and anything else is a storage fault.
func (s *Service) Deduct(ctx context.Context, req DeductionRequest) (DeductionResult, error) {
	if req.AccountID == "" {
		return DeductionResult{}, fmt.Errorf("%w: empty account id", ErrInvalidUsage)
	}

	op, ok := s.catalog.Find(req.Operation)
	if !ok {
		return DeductionResult{}, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}

	raw, err := ResolveCost(op, req.Usage)
	if err != nil {
		return DeductionResult{}, err
	}

	charged := RoundUp(raw, s.catalog.Meta().RoundingStep)

	// Zero-cost requests (unmetered operations, zero units) never touch
	// the debit path; the caller still gets the current balance back.
	if charged.IsZero() {
		snap, balErr := s.ledger.GetBalance(ctx, req.AccountID)
		if balErr != nil {
			return DeductionResult{}, balErr
		}
		return DeductionResult{
			Charged:       decimal.Zero,
			Balance:       snap.Balance,
			TotalConsumed: snap.TotalConsumed,
		}, nil
	}

	snap, err := s.ledger.TryDebit(ctx, req.AccountID, charged)
	if err != nil {
		return DeductionResult{}, err
	}

	s.publishDeducted(ctx, req, op, charged, snap)

	return DeductionResult{
		Charged:       charged,
		Balance:       snap.Balance,
		TotalConsumed: snap.TotalConsumed,
	}, nil
}

// GetBalance returns the account's current balance and lifetime consumed
// credits. Informational, no charge.
func (s *Service) GetBalance(ctx context.Context, accountID string) (ledger.Snapshot, error) {
	return s.ledger.GetBalance(ctx, accountID)
}

// CreateAccount provisions an account with the catalog's initial credit
// grant and returns its opening snapshot.
func (s *Service) CreateAccount(ctx context.Context, accountID string) (ledger.Snapshot, error) {
	if accountID == "" {
		return ledger.Snapshot{}, fmt.Errorf("%w: empty account id", ErrInvalidUsage)
	}

	initial := s.catalog.Meta().InitialCredits
	if err := s.ledger.Provision(ctx, accountID, initial); err != nil {
		return ledger.Snapshot{}, err
	}

	observability.FromContext(ctx).Info("account provisioned",
		observability.String("account_id", accountID),
		observability.String("initial_credits", initial.String()),
	)

	return ledger.Snapshot{Balance: initial, TotalConsumed: decimal.Zero}, nil
}

func (s *Service) publishDeducted(
	ctx context.Context,
	req DeductionRequest,
	op *catalog.Operation,
	charged decimal.Decimal,
	snap ledger.Snapshot,
) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, "credits.deducted", map[string]interface{}{
		"account_id":        req.AccountID,
		"operation":         op.Key,
		"pricing_mode":      op.Mode.String(),
		"credits_charged":   charged.String(),
		"balance_remaining": snap.Balance.String(),
	})
}

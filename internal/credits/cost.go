package credits

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/davidbz/creditmeter/internal/catalog"
)

// Usage describes the measurable quantities of one billable request.
type Usage struct {
	// Units is the number of billed units (images, seconds, jobs).
	// Ignored for token-based operations.
	Units decimal.Decimal

	// Variant selects a rate for variant-priced operations. Empty means
	// the operation's default variant.
	Variant string

	// SizeMetric selects a tier for tiered operations (e.g. megapixels).
	// Nil falls back to the last configured tier.
	SizeMetric *decimal.Decimal

	// InputTokens and OutputTokens drive token-based pricing.
	InputTokens  int64
	OutputTokens int64
}

// ResolveCost computes the unrounded credit cost of the given usage
// against one catalog operation. It is pure: no I/O, no mutation. The
// caller is responsible for rounding the result to a billable amount.
func ResolveCost(op *catalog.Operation, u Usage) (decimal.Decimal, error) {
	if err := validateUsage(u); err != nil {
		return decimal.Zero, err
	}

	switch op.Mode {
	case catalog.ModeUnmetered:
		return decimal.Zero, nil

	case catalog.ModeFlat:
		return op.FlatRate.Mul(u.Units), nil

	case catalog.ModeVariant:
		rate, err := variantRate(op, u.Variant)
		if err != nil {
			return decimal.Zero, err
		}
		return rate.Mul(u.Units), nil

	case catalog.ModeTiered:
		return tierRate(op, u.SizeMetric).Mul(u.Units), nil

	case catalog.ModeTokenBased:
		return tokenCost(op.Tokens, u.InputTokens, u.OutputTokens), nil

	default:
		// Unreachable for catalog-built operations.
		return decimal.Zero, fmt.Errorf("operation %q has unsupported pricing mode", op.Key)
	}
}

func validateUsage(u Usage) error {
	if u.Units.IsNegative() {
		return fmt.Errorf("%w: negative units %s", ErrInvalidUsage, u.Units)
	}
	if u.SizeMetric != nil && u.SizeMetric.IsNegative() {
		return fmt.Errorf("%w: negative size metric %s", ErrInvalidUsage, u.SizeMetric)
	}
	if u.InputTokens < 0 || u.OutputTokens < 0 {
		return fmt.Errorf("%w: negative token counts (%d input, %d output)",
			ErrInvalidUsage, u.InputTokens, u.OutputTokens)
	}
	return nil
}

func variantRate(op *catalog.Operation, name string) (decimal.Decimal, error) {
	if name == "" {
		return op.DefaultVariant().Rate, nil
	}
	for _, v := range op.Variants {
		if v.Name == name {
			return v.Rate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: operation %q has no variant %q",
		ErrInvalidVariant, op.Key, name)
}

// tierRate selects the bracket for a size metric. Tiers are validated at
// catalog construction to be ascending with at most one trailing
// open-ended entry, so every non-negative size matches exactly one tier:
// the open-ended tier catches sizes at or above its threshold, the
// ascending scan catches everything below it. A missing size metric falls
// back to the last configured tier.
func tierRate(op *catalog.Operation, size *decimal.Decimal) decimal.Decimal {
	if size == nil {
		return op.Tiers[len(op.Tiers)-1].Rate
	}
	for _, tier := range op.Tiers {
		if tier.OpenEnded && size.GreaterThanOrEqual(tier.Max) {
			return tier.Rate
		}
		if size.LessThanOrEqual(tier.Max) {
			return tier.Rate
		}
	}
	return op.Tiers[len(op.Tiers)-1].Rate
}

// tokenCost prices token consumption with rates already normalized to
// credits per token. When the operation declares a volume threshold, the
// whole request is billed at the above-threshold rates once the input
// token count exceeds it, mirroring how providers price oversized
// prompts.
func tokenCost(tc *catalog.TokenCost, inputTokens, outputTokens int64) decimal.Decimal {
	in, out := tc.InputPerToken, tc.OutputPerToken
	if tc.Threshold > 0 && inputTokens > tc.Threshold {
		in, out = tc.InputPerTokenAbove, tc.OutputPerTokenAbove
	}
	inputCost := decimal.NewFromInt(inputTokens).Mul(in)
	outputCost := decimal.NewFromInt(outputTokens).Mul(out)
	return inputCost.Add(outputCost)
}

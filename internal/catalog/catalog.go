// Package catalog holds the pricing catalog: the table of billable
// operations and their cost rules. A Catalog is built once at startup and
// is immutable afterwards, so lookups need no locking. All structural
// invariants (variant tables non-empty, tiers sorted, a single trailing
// open-ended tier, token rates normalizable) are enforced at construction
// time; a malformed entry fails the build rather than a request.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Mode selects how an operation's cost is computed.
type Mode int

const (
	// ModeUnmetered operations always cost zero.
	ModeUnmetered Mode = iota

	// ModeFlat charges a fixed rate per unit.
	ModeFlat

	// ModeVariant charges a per-unit rate chosen by variant name.
	ModeVariant

	// ModeTiered charges a per-unit rate chosen by a size metric
	// (e.g. megapixels) against threshold brackets.
	ModeTiered

	// ModeTokenBased charges per input/output token.
	ModeTokenBased
)

// String returns the mode name for logging.
func (m Mode) String() string {
	switch m {
	case ModeUnmetered:
		return "unmetered"
	case ModeFlat:
		return "flat"
	case ModeVariant:
		return "variant"
	case ModeTiered:
		return "tiered"
	case ModeTokenBased:
		return "token_based"
	default:
		return "unknown"
	}
}

// VariantRate is one entry in a variant pricing table. Order matters: the
// first entry is the default when the caller supplies no variant.
type VariantRate struct {
	Name string
	Rate decimal.Decimal
}

// Tier is one threshold-bounded pricing bracket. An open-ended tier also
// matches any size metric at or above its threshold.
type Tier struct {
	Max       decimal.Decimal
	Rate      decimal.Decimal
	OpenEnded bool
}

// TokenDenomination names the token count a declared rate applies to.
type TokenDenomination string

const (
	PerThousandTokens TokenDenomination = "per_thousand"
	PerMillionTokens  TokenDenomination = "per_million"
)

// TokenRates declares token pricing in currency units per denomination,
// the way upstream providers publish it. An optional volume threshold
// switches the whole request to the discounted/premium rates when the
// input token count exceeds it.
type TokenRates struct {
	Denomination    TokenDenomination
	InputRate       decimal.Decimal
	OutputRate      decimal.Decimal
	Threshold       int64
	InputRateAbove  decimal.Decimal
	OutputRateAbove decimal.Decimal
}

// TokenCost is the normalized form of TokenRates: credits per single
// token, computed once at catalog construction so the resolver never sees
// a denomination or a currency.
type TokenCost struct {
	InputPerToken       decimal.Decimal
	OutputPerToken      decimal.Decimal
	Threshold           int64
	InputPerTokenAbove  decimal.Decimal
	OutputPerTokenAbove decimal.Decimal
}

// Spec declares one operation for catalog construction. Exactly one
// pricing payload (Unmetered flag, FlatRate, Variants, Tiers or Tokens)
// must be set; the payload determines the mode.
type Spec struct {
	Key         string
	DisplayName string
	Unit        string
	Unmetered   bool
	FlatRate    decimal.Decimal
	Variants    []VariantRate
	Tiers       []Tier
	Tokens      *TokenRates
}

// Operation is a validated, immutable catalog entry.
type Operation struct {
	Key         string
	DisplayName string
	Unit        string
	Mode        Mode
	FlatRate    decimal.Decimal
	Variants    []VariantRate
	Tiers       []Tier
	Tokens      *TokenCost
}

// DefaultVariant returns the variant used when the caller supplies none.
// Only meaningful for ModeVariant operations.
func (o *Operation) DefaultVariant() VariantRate {
	return o.Variants[0]
}

// Meta holds catalog-wide settings.
type Meta struct {
	// Currency is the currency the catalog's token rates are declared in.
	Currency string

	// CurrencyPerCredit converts currency amounts to credits.
	CurrencyPerCredit decimal.Decimal

	// RoundingStep is the billing granularity: raw costs are rounded up
	// to the nearest multiple of this step.
	RoundingStep decimal.Decimal

	// InitialCredits is the grant for a newly provisioned account.
	InitialCredits decimal.Decimal
}

// Catalog is the read-only set of priced operations.
type Catalog struct {
	meta Meta
	ops  map[string]*Operation
}

// ErrMalformed is wrapped by every catalog construction failure.
var ErrMalformed = errors.New("malformed catalog")

// New validates the given specs and builds a catalog. Any malformed entry
// fails construction; a built Catalog never produces a validation error
// at lookup or resolution time.
func New(meta Meta, specs []Spec) (*Catalog, error) {
	if err := validateMeta(meta); err != nil {
		return nil, err
	}

	ops := make(map[string]*Operation, len(specs))
	for i := range specs {
		op, err := buildOperation(meta, &specs[i])
		if err != nil {
			return nil, err
		}
		if _, exists := ops[op.Key]; exists {
			return nil, fmt.Errorf("%w: duplicate operation key %q", ErrMalformed, op.Key)
		}
		ops[op.Key] = op
	}

	return &Catalog{meta: meta, ops: ops}, nil
}

// Find looks up an operation by key.
func (c *Catalog) Find(key string) (*Operation, bool) {
	op, ok := c.ops[key]
	return op, ok
}

// Meta returns the catalog-wide settings.
func (c *Catalog) Meta() Meta {
	return c.meta
}

// List returns all operations sorted by key.
func (c *Catalog) List() []*Operation {
	ops := make([]*Operation, 0, len(c.ops))
	for _, op := range c.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Key < ops[j].Key })
	return ops
}

func validateMeta(meta Meta) error {
	if !meta.CurrencyPerCredit.IsPositive() {
		return fmt.Errorf("%w: currency_per_credit must be positive, got %s",
			ErrMalformed, meta.CurrencyPerCredit)
	}
	if !meta.RoundingStep.IsPositive() {
		return fmt.Errorf("%w: rounding_step must be positive, got %s",
			ErrMalformed, meta.RoundingStep)
	}
	if meta.InitialCredits.IsNegative() {
		return fmt.Errorf("%w: initial_credits must not be negative, got %s",
			ErrMalformed, meta.InitialCredits)
	}
	return nil
}

func buildOperation(meta Meta, spec *Spec) (*Operation, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("%w: operation with empty key", ErrMalformed)
	}

	payloads := 0
	if spec.Unmetered {
		payloads++
	}
	if !spec.FlatRate.IsZero() {
		payloads++
	}
	if len(spec.Variants) > 0 {
		payloads++
	}
	if len(spec.Tiers) > 0 {
		payloads++
	}
	if spec.Tokens != nil {
		payloads++
	}
	if payloads != 1 {
		return nil, fmt.Errorf("%w: operation %q must declare exactly one pricing payload, got %d",
			ErrMalformed, spec.Key, payloads)
	}

	op := &Operation{
		Key:         spec.Key,
		DisplayName: spec.DisplayName,
		Unit:        spec.Unit,
	}

	switch {
	case spec.Unmetered:
		op.Mode = ModeUnmetered

	case !spec.FlatRate.IsZero():
		if spec.FlatRate.IsNegative() {
			return nil, fmt.Errorf("%w: operation %q has negative flat rate %s",
				ErrMalformed, spec.Key, spec.FlatRate)
		}
		op.Mode = ModeFlat
		op.FlatRate = spec.FlatRate

	case len(spec.Variants) > 0:
		if err := validateVariants(spec.Key, spec.Variants); err != nil {
			return nil, err
		}
		op.Mode = ModeVariant
		op.Variants = append([]VariantRate(nil), spec.Variants...)

	case len(spec.Tiers) > 0:
		if err := validateTiers(spec.Key, spec.Tiers); err != nil {
			return nil, err
		}
		op.Mode = ModeTiered
		op.Tiers = append([]Tier(nil), spec.Tiers...)

	case spec.Tokens != nil:
		tokens, err := normalizeTokenRates(meta, spec.Key, spec.Tokens)
		if err != nil {
			return nil, err
		}
		op.Mode = ModeTokenBased
		op.Tokens = tokens
	}

	return op, nil
}

func validateVariants(key string, variants []VariantRate) error {
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		if v.Name == "" {
			return fmt.Errorf("%w: operation %q has a variant with no name", ErrMalformed, key)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("%w: operation %q has duplicate variant %q", ErrMalformed, key, v.Name)
		}
		seen[v.Name] = struct{}{}
		if !v.Rate.IsPositive() {
			return fmt.Errorf("%w: operation %q variant %q has non-positive rate %s",
				ErrMalformed, key, v.Name, v.Rate)
		}
	}
	return nil
}

func validateTiers(key string, tiers []Tier) error {
	for i, tier := range tiers {
		if !tier.Max.IsPositive() {
			return fmt.Errorf("%w: operation %q tier %d has non-positive threshold %s",
				ErrMalformed, key, i, tier.Max)
		}
		if !tier.Rate.IsPositive() {
			return fmt.Errorf("%w: operation %q tier %d has non-positive rate %s",
				ErrMalformed, key, i, tier.Rate)
		}
		if i > 0 && tier.Max.LessThanOrEqual(tiers[i-1].Max) {
			return fmt.Errorf("%w: operation %q tiers are not strictly ascending at index %d",
				ErrMalformed, key, i)
		}
		if tier.OpenEnded && i != len(tiers)-1 {
			return fmt.Errorf("%w: operation %q has an open-ended tier before the last position",
				ErrMalformed, key)
		}
	}
	return nil
}

func denominationTokens(d TokenDenomination) (decimal.Decimal, error) {
	switch d {
	case PerThousandTokens:
		return decimal.NewFromInt(1_000), nil
	case PerMillionTokens:
		return decimal.NewFromInt(1_000_000), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unknown token denomination %q", d)
	}
}

// normalizeTokenRates converts declared currency-per-denomination rates to
// credits per single token. Doing this once here means two catalogs
// declaring the same effective rate per-thousand and per-million resolve
// identical costs.
func normalizeTokenRates(meta Meta, key string, rates *TokenRates) (*TokenCost, error) {
	denom, err := denominationTokens(rates.Denomination)
	if err != nil {
		return nil, fmt.Errorf("%w: operation %q: %v", ErrMalformed, key, err)
	}
	if rates.InputRate.IsNegative() || rates.OutputRate.IsNegative() {
		return nil, fmt.Errorf("%w: operation %q has negative token rates", ErrMalformed, key)
	}
	if rates.Threshold < 0 {
		return nil, fmt.Errorf("%w: operation %q has negative token threshold %d",
			ErrMalformed, key, rates.Threshold)
	}

	perToken := func(rate decimal.Decimal) decimal.Decimal {
		return rate.Div(denom).Div(meta.CurrencyPerCredit)
	}

	cost := &TokenCost{
		InputPerToken:  perToken(rates.InputRate),
		OutputPerToken: perToken(rates.OutputRate),
		Threshold:      rates.Threshold,
	}

	if rates.Threshold > 0 {
		if !rates.InputRateAbove.IsPositive() || !rates.OutputRateAbove.IsPositive() {
			return nil, fmt.Errorf("%w: operation %q declares a token threshold without above-threshold rates",
				ErrMalformed, key)
		}
		cost.InputPerTokenAbove = perToken(rates.InputRateAbove)
		cost.OutputPerTokenAbove = perToken(rates.OutputRateAbove)
	}

	return cost, nil
}

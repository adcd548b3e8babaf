package catalog

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// YAML document shape for catalog override files. Rates are declared as
// plain numbers; they are converted to decimals before validation.

type fileDoc struct {
	Meta       fileMeta   `yaml:"meta"`
	Operations []fileSpec `yaml:"operations"`
}

type fileMeta struct {
	Currency          string  `yaml:"currency"`
	CurrencyPerCredit float64 `yaml:"currency_per_credit"`
	RoundingStep      float64 `yaml:"rounding_step"`
	InitialCredits    float64 `yaml:"initial_credits"`
}

type fileSpec struct {
	Key         string        `yaml:"key"`
	DisplayName string        `yaml:"display_name"`
	Unit        string        `yaml:"unit"`
	Unmetered   bool          `yaml:"unmetered"`
	FlatRate    float64       `yaml:"flat_rate"`
	Variants    []fileVariant `yaml:"variants"`
	Tiers       []fileTier    `yaml:"tiers"`
	Tokens      *fileTokens   `yaml:"tokens"`
}

type fileVariant struct {
	Name string  `yaml:"name"`
	Rate float64 `yaml:"rate"`
}

type fileTier struct {
	Max       float64 `yaml:"max"`
	Rate      float64 `yaml:"rate"`
	OpenEnded bool    `yaml:"open_ended"`
}

type fileTokens struct {
	Denomination    string  `yaml:"denomination"`
	InputRate       float64 `yaml:"input_rate"`
	OutputRate      float64 `yaml:"output_rate"`
	Threshold       int64   `yaml:"threshold"`
	InputRateAbove  float64 `yaml:"input_rate_above"`
	OutputRateAbove float64 `yaml:"output_rate_above"`
}

// LoadFile parses a YAML catalog document and builds a validated catalog
// from it.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	meta := Meta{
		Currency:          doc.Meta.Currency,
		CurrencyPerCredit: decimal.NewFromFloat(doc.Meta.CurrencyPerCredit),
		RoundingStep:      decimal.NewFromFloat(doc.Meta.RoundingStep),
		InitialCredits:    decimal.NewFromFloat(doc.Meta.InitialCredits),
	}

	specs := make([]Spec, 0, len(doc.Operations))
	for i := range doc.Operations {
		specs = append(specs, doc.Operations[i].toSpec())
	}

	c, err := New(meta, specs)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
	}
	return c, nil
}

func (f *fileSpec) toSpec() Spec {
	spec := Spec{
		Key:         f.Key,
		DisplayName: f.DisplayName,
		Unit:        f.Unit,
		Unmetered:   f.Unmetered,
		FlatRate:    decimal.NewFromFloat(f.FlatRate),
	}

	for _, v := range f.Variants {
		spec.Variants = append(spec.Variants, VariantRate{
			Name: v.Name,
			Rate: decimal.NewFromFloat(v.Rate),
		})
	}

	for _, t := range f.Tiers {
		spec.Tiers = append(spec.Tiers, Tier{
			Max:       decimal.NewFromFloat(t.Max),
			Rate:      decimal.NewFromFloat(t.Rate),
			OpenEnded: t.OpenEnded,
		})
	}

	if f.Tokens != nil {
		spec.Tokens = &TokenRates{
			Denomination:    TokenDenomination(f.Tokens.Denomination),
			InputRate:       decimal.NewFromFloat(f.Tokens.InputRate),
			OutputRate:      decimal.NewFromFloat(f.Tokens.OutputRate),
			Threshold:       f.Tokens.Threshold,
			InputRateAbove:  decimal.NewFromFloat(f.Tokens.InputRateAbove),
			OutputRateAbove: decimal.NewFromFloat(f.Tokens.OutputRateAbove),
		}
	}

	return spec
}

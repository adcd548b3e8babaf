package credits

import "github.com/shopspring/decimal"

// RoundUp rounds a raw cost up to the nearest multiple of step. Rounding
// always goes up so fractional-credit truncation can never under-charge.
// A zero raw cost stays zero: unmetered work is never billed a step.
//
// Quotient-and-remainder keeps the result exact at any raw-cost
// precision; Div before Ceil would truncate quotients beyond decimal's
// default division precision.
func RoundUp(raw, step decimal.Decimal) decimal.Decimal {
	if raw.Sign() <= 0 {
		return decimal.Zero
	}
	q, r := raw.QuoRem(step, 0)
	if r.Sign() > 0 {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q.Mul(step)
}

/*
Package money provides fixed-point currency arithmetic for the billing engine.

PURPOSE:
  Every monetary value in the system is a decimal.Decimal expressed in whole
  currency units (the UI displays zero decimal places). This package owns the
  one rounding rule the engine needs - half-up to the nearest whole unit -
  and the late-payment surcharge derived from it.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, no float accumulation
  2. Recompute, don't mutate: derived totals are always rebuilt by summation
  3. One rounding site: Round() is the only place amounts get rounded

SEE ALSO:
  - invoice/balance.go: Uses Surcharge for overdue invoices
  - settle/engine.go: Uses Round for proportional deposit splits
*/
package money

import (
	"github.com/shopspring/decimal"
)

// SurchargeRate is the late-payment surcharge applied to overdue invoices.
var SurchargeRate = decimal.NewFromFloat(0.10)

// Round rounds to the nearest whole currency unit, half up.
//
// decimal.Round uses half-away-from-zero; amounts at rounding sites in this
// engine are never negative, so the two rules coincide.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Surcharge computes the late-payment surcharge for a month's charges:
// round(0.10 * charges), floored at zero.
func Surcharge(charges decimal.Decimal) decimal.Decimal {
	s := charges.Mul(SurchargeRate)
	if s.IsNegative() {
		s = decimal.Zero
	}
	return Round(s)
}

// Sum recomputes a total from its parts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// FromInt builds a whole-unit amount.
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// WithinTolerance reports whether |a - b| < tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tol)
}

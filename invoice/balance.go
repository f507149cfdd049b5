/*
balance.go - Invoice balance calculator

The one date-dependent rule in the system: an invoice unpaid past its due
date plus a 4-day grace window owes a 10% surcharge on the month's charges.
EffectiveAmount is pure and deterministic for a fixed asOf; it is recomputed
on every display and every allocation, never cached across days.
*/
package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/money"
)

// GraceDays is the window after the due date during which no surcharge
// applies.
const GraceDays = 4

// EffectiveAmount computes what the invoice costs as of the given date.
//
// Within the grace window, or once fully paid, it is the grand total. Past
// the window with money still owed, the late surcharge is added:
// round(0.10 * chargesForMonth), floored at zero.
func EffectiveAmount(inv *Invoice, asOf time.Time) decimal.Decimal {
	charges := chargesForMonth(inv)

	grand := inv.GrandTotal
	if grand.IsZero() {
		grand = charges.Add(inv.TotalArrears)
	}

	dueWithGrace := inv.DueDate.AddDate(0, 0, GraceDays)
	if !asOf.After(dueWithGrace) {
		return grand
	}
	if grand.Sub(inv.TotalPaid).LessThanOrEqual(decimal.Zero) {
		// Already settled in full; lateness no longer matters.
		return grand
	}
	return grand.Add(money.Surcharge(charges))
}

// Balance is what remains payable as of the given date.
func Balance(inv *Invoice, asOf time.Time) decimal.Decimal {
	return EffectiveAmount(inv, asOf).Sub(inv.TotalPaid)
}

// StatusFor derives the payment status from the balance as of a date.
func StatusFor(inv *Invoice, asOf time.Time) PaymentStatus {
	switch {
	case Balance(inv, asOf).LessThanOrEqual(decimal.Zero):
		return StatusPaid
	case inv.TotalPaid.IsPositive():
		return StatusPartialPaid
	default:
		return StatusUnpaid
	}
}

// chargesForMonth is the surcharge base: the sum of positive charge-line
// amounts when any exist, else the subtotal.
func chargesForMonth(inv *Invoice) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range inv.Charges {
		if c.Amount.IsPositive() {
			sum = sum.Add(c.Amount)
		}
	}
	if sum.IsPositive() {
		return sum
	}
	return inv.Subtotal
}

/*
Package invoice provides the billable-document model and the pure balance
calculator with the late-payment surcharge rule.

KEY CONCEPTS:
  - Invoice: charge lines with derived subtotal/arrears/grand total
  - EffectiveAmount: what the invoice costs as of a date (surcharge included)
  - PaymentStatus: unpaid -> partial_paid -> paid as the balance reaches zero

The settlement engine only reads balances and writes TotalPaid/Status here;
charge-line mutation belongs to the invoicing workflow.
*/
package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/money"
)

type ID string

type PaymentStatus string

const (
	StatusUnpaid      PaymentStatus = "unpaid"
	StatusPartialPaid PaymentStatus = "partial_paid"
	StatusPaid        PaymentStatus = "paid"
)

// Charge is one billable line item.
type Charge struct {
	Type        string
	Description string
	Amount      decimal.Decimal
	Arrears     decimal.Decimal
}

// Invoice is a billable document. A PropertyID of "" makes it an open
// invoice, billed directly to the named customer.
type Invoice struct {
	ID         ID
	Number     string
	PropertyID string
	Customer   string

	Charges      []Charge
	Subtotal     decimal.Decimal
	TotalArrears decimal.Decimal
	GrandTotal   decimal.Decimal // subtotal + arrears, prior to surcharge

	DueDate   time.Time
	TotalPaid decimal.Decimal
	Status    PaymentStatus

	CreatedAt time.Time
}

// RecomputeTotals rebuilds the derived totals from the charge lines.
// Totals are always recomputed by summation, never adjusted in place.
func (inv *Invoice) RecomputeTotals() {
	sub := decimal.Zero
	arr := decimal.Zero
	for _, c := range inv.Charges {
		sub = sub.Add(c.Amount)
		arr = arr.Add(c.Arrears)
	}
	inv.Subtotal = money.Round(sub)
	inv.TotalArrears = money.Round(arr)
	inv.GrandTotal = inv.Subtotal.Add(inv.TotalArrears)
}

// Number format: INV-{TYPE3}-{YYYY}-{MM}-{SEQ4}.
func NewNumber(invoiceType string, year int, month time.Month, seq int) string {
	t := strings.ToUpper(invoiceType)
	if len(t) > 3 {
		t = t[:3]
	}
	return fmt.Sprintf("INV-%s-%04d-%02d-%04d", t, year, int(month), seq)
}

// Store persists invoice summary state. The settlement engine uses Save only
// to write back TotalPaid and Status; charge lines are owned elsewhere.
type Store interface {
	SaveInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id ID) (*Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
}

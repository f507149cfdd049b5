/*
Package settle implements the allocation engine: it takes a funding source
(the account's general balance or a named set of deposits) and a list of
invoice requests, validates the settlement invariants, and emits one
settlement transaction per invoice.

KEY CONCEPTS IN THIS FILE (types.go):
  - Request: one settlement batch (balance-funded or deposit-funded)
  - Outcome/Result: per-invoice reporting for the partial-commit semantics
  - Event: what gets published after each committed settlement
*/
package settle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
)

// InvoiceRequest asks to settle one invoice with a specific amount.
type InvoiceRequest struct {
	InvoiceID invoice.ID
	Amount    decimal.Decimal
}

// DepositUse names one deposit and how much of it funds the batch.
type DepositUse struct {
	DepositID ledger.TransactionID
	Amount    decimal.Decimal
}

// Request is one settlement batch. Exactly one funding shape applies:
// deposit-funded when DepositUses is non-empty, balance-funded otherwise
// (PaymentAmount is the funding cap).
type Request struct {
	AccountID ledger.AccountID

	PaymentAmount decimal.Decimal
	DepositUses   []DepositUse

	Invoices []InvoiceRequest

	Method      string
	BankRef     string
	Description string

	// AsOf fixes "now" for balance/surcharge computation across the batch.
	// Zero means the engine's clock.
	AsOf time.Time
}

// DepositFunded reports the funding shape of the request.
func (r Request) DepositFunded() bool { return len(r.DepositUses) > 0 }

// FundingTotal is the total amount the batch must allocate exactly.
func (r Request) FundingTotal() decimal.Decimal {
	if r.DepositFunded() {
		total := decimal.Zero
		for _, u := range r.DepositUses {
			total = total.Add(u.Amount)
		}
		return total
	}
	return r.PaymentAmount
}

// RequestedTotal is the sum of all invoice request amounts.
func (r Request) RequestedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, ir := range r.Invoices {
		total = total.Add(ir.Amount)
	}
	return total
}

// Outcome reports one invoice's settlement inside a batch.
type Outcome struct {
	InvoiceID     invoice.ID
	Requested     decimal.Decimal
	TransactionID ledger.TransactionID
	Status        invoice.PaymentStatus
	Err           error
}

func (o Outcome) Settled() bool { return o.Err == nil }

// Result is the per-invoice report of a batch. Settlements commit
// independently: a batch can fully succeed, fully fail validation (nothing
// written), or partially succeed.
type Result struct {
	Outcomes []Outcome
}

func (r Result) AllSettled() bool {
	for _, o := range r.Outcomes {
		if !o.Settled() {
			return false
		}
	}
	return true
}

func (r Result) SettledCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Settled() {
			n++
		}
	}
	return n
}

// Event is published after each committed settlement.
type Event struct {
	TransactionID ledger.TransactionID  `json:"transaction_id"`
	AccountID     ledger.AccountID      `json:"account_id"`
	InvoiceID     invoice.ID            `json:"invoice_id"`
	Amount        decimal.Decimal       `json:"amount"`
	Status        invoice.PaymentStatus `json:"status"`
	SettledAt     time.Time             `json:"settled_at"`
}

// EventPublisher receives settlement events. Publishing is best effort and
// never blocks or fails the ledger write.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

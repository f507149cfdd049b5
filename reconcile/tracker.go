/*
Package reconcile tracks monthly bank reconciliation: the recorded
deposit+suspense total for a month against the manually entered reconciled
amount. Saving is gated on the two matching to the cent, and the entered
amount can never be persisted without its supporting attachment.

The tracker does not compute the month's totals itself; the invoicing
workflow supplies them as inputs.
*/
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/money"
)

// Tolerance is the acceptable distance from zero for a month's reconciliation
// balance: |computed - entered| must be strictly below 0.01.
var Tolerance = decimal.RequireFromString("0.01")

// MonthKey identifies a calendar month, formatted "YYYY-MM".
type MonthKey string

func NewMonthKey(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// ParseMonthKey validates the "YYYY-MM" format.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", ledger.Validationf("month_key", "invalid month key %q, want YYYY-MM", s)
	}
	return MonthKey(s), nil
}

// Attachment is the supporting document saved with a reconciled amount.
type Attachment struct {
	ID       string
	Filename string
	Data     []byte
}

// Record is one month's reconciliation state. Saving again for the same
// month overwrites; no history is kept.
type Record struct {
	Month      MonthKey
	Amount     decimal.Decimal
	Attachment Attachment
	SavedAt    time.Time
}

// Store persists reconciliation records, one per month key.
type Store interface {
	SaveRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, month MonthKey) (*Record, error)
}

// MismatchError reports a month whose computed total does not match the
// entered amount within Tolerance.
type MismatchError struct {
	Month    MonthKey
	Computed decimal.Decimal
	Entered  decimal.Decimal
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("month %s does not balance: computed %s, entered %s (difference %s)",
		e.Month, e.Computed, e.Entered, e.Computed.Sub(e.Entered))
}

func (e *MismatchError) Unwrap() error { return ledger.ErrValidation }

// Tracker gates reconciliation saves on exact balance.
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Save persists the month's reconciled amount together with its attachment.
//
// Preconditions: the amount is non-negative, an attachment payload is
// present, and the supplied computed total (deposit total + suspense) is
// within Tolerance of the entered amount. Amount and attachment persist
// atomically or not at all.
func (t *Tracker) Save(ctx context.Context, month MonthKey, amount, computed decimal.Decimal, filename string, data []byte) (*Record, error) {
	if amount.IsNegative() {
		return nil, ledger.Validationf("reconcile", "reconcile amount must be non-negative, got %s", amount)
	}
	if len(data) == 0 || filename == "" {
		return nil, ledger.Validationf("reconcile", "an attachment is required to save a reconciliation")
	}
	if !money.WithinTolerance(computed, amount, Tolerance) {
		return nil, &MismatchError{Month: month, Computed: computed, Entered: amount}
	}

	rec := Record{
		Month:  month,
		Amount: amount,
		Attachment: Attachment{
			ID:       uuid.NewString(),
			Filename: filename,
			Data:     data,
		},
		SavedAt: t.now(),
	}
	if err := t.store.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the month's record, or (nil, nil) when none was saved.
func (t *Tracker) Get(ctx context.Context, month MonthKey) (*Record, error) {
	return t.store.GetRecord(ctx, month)
}

package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/money"
	"github.com/warp/billing-engine/reconcile"
	"github.com/warp/billing-engine/store/memory"
)

func newTracker(t *testing.T) (*reconcile.Tracker, *memory.Store) {
	t.Helper()
	store := memory.New()
	return reconcile.NewTracker(store), store
}

var attachment = []byte("%PDF-1.4 bank statement")

func TestSave_BalancedMonth(t *testing.T) {
	tr, store := newTracker(t)
	ctx := context.Background()

	rec, err := tr.Save(ctx, "2026-06", money.FromInt(125000), money.FromInt(125000),
		"statement-june.pdf", attachment)
	require.NoError(t, err)
	assert.Equal(t, reconcile.MonthKey("2026-06"), rec.Month)
	assert.Equal(t, "statement-june.pdf", rec.Attachment.Filename)
	assert.NotEmpty(t, rec.Attachment.ID)

	saved, err := store.GetRecord(ctx, "2026-06")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.True(t, saved.Amount.Equal(money.FromInt(125000)))
	assert.Equal(t, attachment, saved.Attachment.Data)
}

func TestSave_WithinToleranceSucceeds(t *testing.T) {
	tr, _ := newTracker(t)

	// 0.005 off: inside the 0.01 tolerance
	computed := decimal.RequireFromString("125000.005")
	_, err := tr.Save(context.Background(), "2026-06", money.FromInt(125000), computed,
		"statement.pdf", attachment)
	assert.NoError(t, err)
}

func TestSave_MismatchRejected(t *testing.T) {
	tr, store := newTracker(t)
	ctx := context.Background()

	_, err := tr.Save(ctx, "2026-06", money.FromInt(125000), decimal.RequireFromString("125000.01"),
		"statement.pdf", attachment)
	require.Error(t, err)

	var mismatch *reconcile.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, reconcile.MonthKey("2026-06"), mismatch.Month)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	rec, err := store.GetRecord(ctx, "2026-06")
	require.NoError(t, err)
	assert.Nil(t, rec, "a mismatched month must not be persisted")
}

func TestSave_AttachmentRequired(t *testing.T) {
	tr, store := newTracker(t)
	ctx := context.Background()

	_, err := tr.Save(ctx, "2026-06", money.FromInt(100), money.FromInt(100), "statement.pdf", nil)
	assert.ErrorIs(t, err, ledger.ErrValidation, "empty payload rejected")

	_, err = tr.Save(ctx, "2026-06", money.FromInt(100), money.FromInt(100), "", attachment)
	assert.ErrorIs(t, err, ledger.ErrValidation, "missing filename rejected")

	rec, err := store.GetRecord(ctx, "2026-06")
	require.NoError(t, err)
	assert.Nil(t, rec, "amount never persists without its attachment")
}

func TestSave_NegativeAmountRejected(t *testing.T) {
	tr, _ := newTracker(t)
	_, err := tr.Save(context.Background(), "2026-06", money.FromInt(-1), money.FromInt(-1),
		"statement.pdf", attachment)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSave_OverwritesSameMonth(t *testing.T) {
	tr, store := newTracker(t)
	ctx := context.Background()

	_, err := tr.Save(ctx, "2026-06", money.FromInt(100), money.FromInt(100), "v1.pdf", attachment)
	require.NoError(t, err)
	_, err = tr.Save(ctx, "2026-06", money.FromInt(200), money.FromInt(200), "v2.pdf", attachment)
	require.NoError(t, err)

	rec, err := store.GetRecord(ctx, "2026-06")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Amount.Equal(money.FromInt(200)))
	assert.Equal(t, "v2.pdf", rec.Attachment.Filename)
}

func TestMonthKey(t *testing.T) {
	key := reconcile.NewMonthKey(time.Date(2026, time.June, 17, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, reconcile.MonthKey("2026-06"), key)

	_, err := reconcile.ParseMonthKey("2026-13")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	parsed, err := reconcile.ParseMonthKey("2026-06")
	require.NoError(t, err)
	assert.Equal(t, reconcile.MonthKey("2026-06"), parsed)
}

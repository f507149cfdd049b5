package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/reconcile"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTransactionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := ledger.Transaction{
		ID:            ledger.TransactionID(uuid.NewString()),
		AccountID:     "acct-1",
		Type:          ledger.TxPayment,
		Amount:        decimal.NewFromInt(-4500),
		BalanceBefore: decimal.NewFromInt(8000),
		BalanceAfter:  decimal.NewFromInt(3500),
		Method:        "deposit",
		Description:   "settlement of INV-WAT-2026-03-0001",
		ReferenceType: ledger.RefInvoice,
		ReferenceID:   "inv-1",
		Usages: []ledger.DepositUsage{
			{DepositID: "dep-1", Amount: decimal.NewFromInt(3000)},
			{DepositID: "dep-2", Amount: decimal.NewFromInt(1500)},
		},
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendTransaction(ctx, tx))

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(tx.Amount))
	assert.True(t, got.BalanceAfter.Equal(tx.BalanceAfter))
	assert.Equal(t, ledger.RefInvoice, got.ReferenceType)
	require.Len(t, got.Usages, 2)
	assert.Equal(t, ledger.TransactionID("dep-1"), got.Usages[0].DepositID)
	assert.True(t, got.Usages[1].Amount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, got.CreatedAt.Equal(tx.CreatedAt))
}

func TestTransactionsOrderedByTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Insert out of order; reads must come back chronological.
	for _, offset := range []int{2, 0, 1} {
		tx := ledger.Transaction{
			ID:           ledger.TransactionID(uuid.NewString()),
			AccountID:    "acct-1",
			Type:         ledger.TxDeposit,
			Amount:       decimal.NewFromInt(int64(100 + offset)),
			BalanceAfter: decimal.NewFromInt(int64(100 + offset)),
			CreatedAt:    base.Add(time.Duration(offset) * time.Hour),
		}
		require.NoError(t, store.AppendTransaction(ctx, tx))
	}

	txs, err := store.Transactions(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for i := 1; i < len(txs); i++ {
		assert.True(t, !txs[i].CreatedAt.Before(txs[i-1].CreatedAt))
	}

	other, err := store.Transactions(ctx, "acct-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetTransaction_Missing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetTransaction(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx := ledger.Transaction{
		ID:           "tx-1",
		AccountID:    "acct-1",
		Type:         ledger.TxDeposit,
		Amount:       decimal.NewFromInt(5000),
		BalanceAfter: decimal.NewFromInt(5000),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.AppendTransaction(ctx, tx))

	tx.Amount = decimal.NewFromInt(6000)
	tx.BalanceAfter = decimal.NewFromInt(6000)
	tx.BankRef = "BNK-009"
	require.NoError(t, store.UpdateTransactions(ctx, []ledger.Transaction{tx}))

	got, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(6000)))
	assert.Equal(t, "BNK-009", got.BankRef)

	// Unknown id fails the whole batch.
	err = store.UpdateTransactions(ctx, []ledger.Transaction{{ID: "ghost"}})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAccountLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, ledger.Account{ID: "acct-1", Name: "Unit 4B", Active: true}))
	require.NoError(t, store.SaveAccount(ctx, ledger.Account{ID: "acct-1", Name: "Unit 4B (renamed)", Active: true}))

	a, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Unit 4B (renamed)", a.Name)
	assert.True(t, a.Active)

	require.NoError(t, store.DeactivateAccount(ctx, "acct-1"))
	a, err = store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, a.Active)

	assert.ErrorIs(t, store.DeactivateAccount(ctx, "ghost"), ledger.ErrNotFound)

	missing, err := store.GetAccount(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInvoiceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv := invoice.Invoice{
		ID:         "inv-1",
		Number:     "INV-WAT-2026-03-0001",
		PropertyID: "prop-9",
		Customer:   "B. Okoye",
		Charges: []invoice.Charge{
			{Type: "water", Description: "March usage", Amount: decimal.NewFromInt(9000)},
		},
		DueDate: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:  invoice.StatusUnpaid,
	}
	inv.RecomputeTotals()
	require.NoError(t, store.SaveInvoice(ctx, inv))

	inv.TotalPaid = decimal.NewFromInt(4000)
	inv.Status = invoice.StatusPartialPaid
	require.NoError(t, store.SaveInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "INV-WAT-2026-03-0001", got.Number)
	assert.True(t, got.GrandTotal.Equal(decimal.NewFromInt(9000)))
	assert.True(t, got.TotalPaid.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, invoice.StatusPartialPaid, got.Status)
	require.Len(t, got.Charges, 1)
	assert.True(t, got.Charges[0].Amount.Equal(decimal.NewFromInt(9000)))

	all, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReconciliationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := reconcile.Record{
		Month:  "2026-03",
		Amount: decimal.NewFromInt(125000),
		Attachment: reconcile.Attachment{
			ID:       uuid.NewString(),
			Filename: "statement-march.pdf",
			Data:     []byte("%PDF-1.4 statement"),
		},
		SavedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveRecord(ctx, rec))

	// Saving the same month again overwrites.
	rec.Amount = decimal.NewFromInt(126000)
	rec.Attachment.Filename = "statement-march-v2.pdf"
	require.NoError(t, store.SaveRecord(ctx, rec))

	got, err := store.GetRecord(ctx, "2026-03")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(126000)))
	assert.Equal(t, "statement-march-v2.pdf", got.Attachment.Filename)
	assert.Equal(t, []byte("%PDF-1.4 statement"), got.Attachment.Data)

	missing, err := store.GetRecord(ctx, "2026-04")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

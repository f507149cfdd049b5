package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/money"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	return ledger.NewLedger(store), store
}

func deposit(account string, amount int64) ledger.Transaction {
	return ledger.Transaction{
		AccountID: ledger.AccountID(account),
		Type:      ledger.TxDeposit,
		Amount:    money.FromInt(amount),
		Method:    "bank_transfer",
	}
}

// =============================================================================
// BALANCE CONSERVATION
// =============================================================================

func TestLedger_BalanceIsSumOfAmounts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)
	_, err = l.Append(ctx, deposit("res-1", 3000))
	require.NoError(t, err)
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-2000),
	})
	require.NoError(t, err)

	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(money.FromInt(6000)), "got %s", balance)

	txs, err := l.Transactions(ctx, "res-1")
	require.NoError(t, err)
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	assert.True(t, balance.Equal(sum), "balance must equal the sum of all transaction amounts")
}

func TestLedger_SnapshotsRecomputedAtWriteTime(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-1500),
	})
	require.NoError(t, err)

	txs, err := l.Transactions(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].BalanceBefore.IsZero())
	assert.True(t, txs[0].BalanceAfter.Equal(money.FromInt(5000)))
	assert.True(t, txs[1].BalanceBefore.Equal(money.FromInt(5000)))
	assert.True(t, txs[1].BalanceAfter.Equal(money.FromInt(3500)))
}

func TestLedger_InconsistentSnapshotsRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx := deposit("res-1", 1000)
	tx.BalanceBefore = money.FromInt(100)
	tx.BalanceAfter = money.FromInt(200) // 100 + 1000 != 200

	_, err := l.Append(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// DEPOSIT REMAINING / NON-NEGATIVITY
// =============================================================================

func TestLedger_DepositRemaining(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)

	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-3000),
		Usages:    []ledger.DepositUsage{{DepositID: depID, Amount: money.FromInt(3000)}},
	})
	require.NoError(t, err)

	deposits, err := l.ListDeposits(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.True(t, deposits[0].Remaining.Equal(money.FromInt(2000)), "got %s", deposits[0].Remaining)
	assert.True(t, deposits[0].OriginalAmount.Equal(money.FromInt(5000)))
}

func TestLedger_DepositOverdrawRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 1000))
	require.NoError(t, err)

	// Overdraw in one shot
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-1500),
		Usages:    []ledger.DepositUsage{{DepositID: depID, Amount: money.FromInt(1500)}},
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	var ife *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, depID, ife.DepositID)
	assert.True(t, ife.Available.Equal(money.FromInt(1000)))

	// Nothing was written
	deposits, err := l.ListDeposits(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, deposits[0].Remaining.Equal(money.FromInt(1000)))
}

func TestLedger_UsageTotalCannotExceedAmount(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)

	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-1000),
		Usages:    []ledger.DepositUsage{{DepositID: depID, Amount: money.FromInt(1200)}},
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestLedger_UnknownDepositRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)

	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-100),
		Usages:    []ledger.DepositUsage{{DepositID: "missing", Amount: money.FromInt(100)}},
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// SIGN / TYPE VALIDATION
// =============================================================================

func TestLedger_SignConventions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxDeposit,
		Amount:    money.FromInt(-500),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "negative deposit rejected")

	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(500),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "positive payment rejected")

	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxDeposit,
		Amount:    decimal.Zero,
	})
	assert.ErrorIs(t, err, ledger.ErrValidation, "zero amount rejected")
}

// =============================================================================
// REVERSALS AND DEPOSIT EDITING
// =============================================================================

func TestLedger_ReverseDeposit(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-2000),
		Usages:    []ledger.DepositUsage{{DepositID: depID, Amount: money.FromInt(2000)}},
	})
	require.NoError(t, err)

	revID, err := l.ReverseDeposit(ctx, depID, "entered against wrong resident")
	require.NoError(t, err)
	assert.NotEmpty(t, revID)

	// The unconsumed 3,000 left the balance and the deposit is exhausted.
	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(money.FromInt(0)), "got %s", balance)

	deposits, err := l.ListDeposits(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.True(t, deposits[0].Remaining.IsZero())

	// Reversing twice is rejected.
	_, err = l.ReverseDeposit(ctx, depID, "again")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestLedger_ReversalMarkedDepositsExcludedFromFunding(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx := deposit("res-1", 1000)
	tx.BankRef = ledger.ReversalRefPrefix + "some-tx"
	_, err := l.Append(ctx, tx)
	require.NoError(t, err)

	deposits, err := l.ListDeposits(ctx, "res-1")
	require.NoError(t, err)
	assert.Empty(t, deposits, "reversal-marked deposits must not appear in funding lists")
}

func TestLedger_EditDeposit_FieldsAlwaysEditable(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-2000),
		Usages:    []ledger.DepositUsage{{DepositID: depID, Amount: money.FromInt(2000)}},
	})
	require.NoError(t, err)

	method := "cheque"
	bankRef := "CHQ-0042"
	edited, err := l.EditDeposit(ctx, depID, ledger.DepositPatch{Method: &method, BankRef: &bankRef})
	require.NoError(t, err)
	assert.Equal(t, "cheque", edited.Method)
	assert.Equal(t, "CHQ-0042", edited.BankRef)
}

func TestLedger_EditDeposit_AmountLockedOnceUsed(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-1),
		Usages:    []ledger.DepositUsage{{DepositID: depID, Amount: money.FromInt(1)}},
	})
	require.NoError(t, err)

	newAmount := money.FromInt(6000)
	_, err = l.EditDeposit(ctx, depID, ledger.DepositPatch{Amount: &newAmount})
	assert.ErrorIs(t, err, ledger.ErrDepositInUse)
}

func TestLedger_EditDeposit_AmountEditRewritesSnapshots(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	depID, err := l.Append(ctx, deposit("res-1", 5000))
	require.NoError(t, err)
	_, err = l.Append(ctx, ledger.Transaction{
		AccountID: "res-1",
		Type:      ledger.TxPayment,
		Amount:    money.FromInt(-1000),
	})
	require.NoError(t, err)

	newAmount := money.FromInt(4000)
	edited, err := l.EditDeposit(ctx, depID, ledger.DepositPatch{Amount: &newAmount})
	require.NoError(t, err)
	assert.True(t, edited.Amount.Equal(money.FromInt(4000)))

	txs, err := l.Transactions(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].BalanceAfter.Equal(money.FromInt(4000)))
	assert.True(t, txs[1].BalanceBefore.Equal(money.FromInt(4000)))
	assert.True(t, txs[1].BalanceAfter.Equal(money.FromInt(3000)))

	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(money.FromInt(3000)))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentAppendsConserveBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := l.Append(ctx, deposit("res-1", 100))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(money.FromInt(100*writers)), "got %s", balance)

	txs, err := l.Transactions(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, txs, writers)
	for _, tx := range txs {
		assert.True(t, tx.BalanceAfter.Equal(tx.BalanceBefore.Add(tx.Amount)),
			"snapshots must stay internally consistent under concurrency")
	}
}

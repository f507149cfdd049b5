/*
ledger.go - Ledger service over the append-only transaction log

PURPOSE:
  The Ledger is the only writer of transactions and the only reader callers
  should use for balances and deposit remainders. Balance is always computed
  by replaying the account's transactions - there is no stored balance that
  can drift.

CONCURRENCY:
  All appends affecting one account are serialized through a per-account
  mutex. WithAccount exposes the critical section so a settlement can span
  "read balance / deposit remainders" through "append transaction and update
  the invoice" without another writer interleaving. Different accounts are
  independent.

CORRECTIONS:
  Transactions are never edited. The two exceptions the back office needs:
  - EditDeposit: fixes a deposit's own fields; the amount may only change
    while the deposit is unused, and balance snapshots of every later
    transaction are rewritten atomically.
  - ReverseDeposit: annuls a deposit's remaining amount with a reversal
    transaction that consumes it, preserving history.
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger owns transaction writes and derived reads for resident accounts.
type Ledger struct {
	store Store

	muMap map[AccountID]*sync.Mutex
	mapMu sync.Mutex

	now func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		muMap: make(map[AccountID]*sync.Mutex),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) accountLock(id AccountID) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	if _, ok := l.muMap[id]; !ok {
		l.muMap[id] = &sync.Mutex{}
	}
	return l.muMap[id]
}

// =============================================================================
// PUBLIC OPERATIONS - each holds the account critical section
// =============================================================================

// GetBalance returns the sum of all transaction amounts for the account.
func (l *Ledger) GetBalance(ctx context.Context, accountID AccountID) (decimal.Decimal, error) {
	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()
	return l.balanceLocked(ctx, accountID)
}

// ListDeposits returns the account's deposits with their remaining amounts.
// Deposits flagged as reversals (bank reference prefix) are excluded.
func (l *Ledger) ListDeposits(ctx context.Context, accountID AccountID) ([]Deposit, error) {
	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()
	return l.depositsLocked(ctx, accountID)
}

// Transactions returns the account's full history, chronologically.
func (l *Ledger) Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error) {
	return l.store.Transactions(ctx, accountID)
}

// GetTransaction returns one transaction by id, or (nil, nil) when unknown.
func (l *Ledger) GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error) {
	return l.store.GetTransaction(ctx, id)
}

// Append validates and persists one transaction.
func (l *Ledger) Append(ctx context.Context, tx Transaction) (TransactionID, error) {
	mu := l.accountLock(tx.AccountID)
	mu.Lock()
	defer mu.Unlock()
	return l.appendLocked(ctx, tx)
}

// WithAccount runs fn inside the account's critical section. Reads and the
// resulting append inside fn cannot interleave with any other writer for the
// same account.
func (l *Ledger) WithAccount(ctx context.Context, accountID AccountID, fn func(ac *AccountTx) error) error {
	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()
	return fn(&AccountTx{ledger: l, accountID: accountID})
}

// AccountTx is the view handed to WithAccount callbacks. Its methods assume
// the account lock is already held.
type AccountTx struct {
	ledger    *Ledger
	accountID AccountID
}

func (ac *AccountTx) Balance(ctx context.Context) (decimal.Decimal, error) {
	return ac.ledger.balanceLocked(ctx, ac.accountID)
}

func (ac *AccountTx) Deposits(ctx context.Context) ([]Deposit, error) {
	return ac.ledger.depositsLocked(ctx, ac.accountID)
}

func (ac *AccountTx) Append(ctx context.Context, tx Transaction) (TransactionID, error) {
	tx.AccountID = ac.accountID
	return ac.ledger.appendLocked(ctx, tx)
}

// =============================================================================
// DEPOSIT CORRECTION
// =============================================================================

// EditDeposit corrects a deposit transaction's own fields. Method, bank
// reference and description may change freely. The amount may only change
// while nothing has been drawn from the deposit (ErrDepositInUse otherwise);
// an amount change rewrites the balance snapshots of every later transaction
// in the same atomic store write.
func (l *Ledger) EditDeposit(ctx context.Context, id TransactionID, patch DepositPatch) (*Transaction, error) {
	target, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, &NotFoundError{Kind: "deposit", ID: string(id)}
	}
	if target.Type != TxDeposit {
		return nil, Validationf("deposit_edit", "transaction %s is not a deposit", id)
	}

	mu := l.accountLock(target.AccountID)
	mu.Lock()
	defer mu.Unlock()

	txs, err := l.store.Transactions(ctx, target.AccountID)
	if err != nil {
		return nil, err
	}

	if patch.Amount != nil {
		used := usageByDeposit(txs)[id]
		if used.IsPositive() {
			return nil, ErrDepositInUse
		}
		if !patch.Amount.IsPositive() {
			return nil, Validationf("deposit_edit", "amount must be positive, got %s", patch.Amount)
		}
	}

	// Apply the patch to the in-memory copy, then rewrite snapshots from the
	// edited transaction onward.
	var updated []Transaction
	running := decimal.Zero
	dirty := false
	var edited *Transaction
	for i := range txs {
		tx := txs[i]
		if tx.ID == id {
			if patch.Amount != nil && !tx.Amount.Equal(*patch.Amount) {
				tx.Amount = *patch.Amount
				dirty = true
			}
			if patch.Method != nil {
				tx.Method = *patch.Method
			}
			if patch.BankRef != nil {
				tx.BankRef = *patch.BankRef
			}
			if patch.Description != nil {
				tx.Description = *patch.Description
			}
			if !dirty {
				// Field-only edit: snapshots are untouched.
				if err := l.store.UpdateTransactions(ctx, []Transaction{tx}); err != nil {
					return nil, err
				}
				return &tx, nil
			}
		}
		before := running
		running = running.Add(tx.Amount)
		if dirty {
			tx.BalanceBefore = before
			tx.BalanceAfter = running
			updated = append(updated, tx)
		}
		if tx.ID == id {
			c := tx
			edited = &c
		}
	}

	if err := l.store.UpdateTransactions(ctx, updated); err != nil {
		return nil, err
	}
	return edited, nil
}

// ReverseDeposit annuls whatever remains of a deposit. The reversal entry
// consumes the remaining amount through a usage on the deposit, so the
// deposit can no longer fund settlements and the account balance drops by
// the unconsumed part. History stays intact.
func (l *Ledger) ReverseDeposit(ctx context.Context, id TransactionID, reason string) (TransactionID, error) {
	target, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return "", err
	}
	if target == nil {
		return "", &NotFoundError{Kind: "deposit", ID: string(id)}
	}
	if target.Type != TxDeposit {
		return "", Validationf("deposit_reversal", "transaction %s is not a deposit", id)
	}

	mu := l.accountLock(target.AccountID)
	mu.Lock()
	defer mu.Unlock()

	txs, err := l.store.Transactions(ctx, target.AccountID)
	if err != nil {
		return "", err
	}
	for _, tx := range txs {
		if tx.Type == TxReversal && tx.ReferenceType == RefDeposit && tx.ReferenceID == string(id) {
			return "", Validationf("deposit_reversal", "deposit %s already reversed", id)
		}
	}
	remaining := target.Amount.Sub(usageByDeposit(txs)[id])
	if !remaining.IsPositive() {
		return "", Validationf("deposit_reversal", "deposit %s has nothing left to reverse", id)
	}

	return l.appendLocked(ctx, Transaction{
		AccountID:     target.AccountID,
		Type:          TxReversal,
		Amount:        remaining.Neg(),
		Method:        target.Method,
		BankRef:       ReversalRefPrefix + string(id),
		Description:   reason,
		ReferenceType: RefDeposit,
		ReferenceID:   string(id),
		Usages:        []DepositUsage{{DepositID: id, Amount: remaining}},
	})
}

// =============================================================================
// INTERNALS - assume the account lock is held
// =============================================================================

func (l *Ledger) balanceLocked(ctx context.Context, accountID AccountID) (decimal.Decimal, error) {
	txs, err := l.store.Transactions(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, tx := range txs {
		balance = balance.Add(tx.Amount)
	}
	return balance, nil
}

func (l *Ledger) depositsLocked(ctx context.Context, accountID AccountID) ([]Deposit, error) {
	txs, err := l.store.Transactions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	used := usageByDeposit(txs)

	var deposits []Deposit
	for _, tx := range txs {
		if tx.Type != TxDeposit || tx.IsReversalMarked() {
			continue
		}
		deposits = append(deposits, Deposit{
			TransactionID:  tx.ID,
			OriginalAmount: tx.Amount,
			Remaining:      tx.Amount.Sub(used[tx.ID]),
			Method:         tx.Method,
			BankRef:        tx.BankRef,
			CreatedAt:      tx.CreatedAt,
		})
	}
	return deposits, nil
}

func (l *Ledger) appendLocked(ctx context.Context, tx Transaction) (TransactionID, error) {
	if tx.AccountID == "" {
		return "", Validationf("append", "account id is required")
	}
	if tx.Amount.IsZero() {
		return "", Validationf("append", "amount must be non-zero")
	}
	switch tx.Type {
	case TxDeposit:
		if !tx.Amount.IsPositive() {
			return "", Validationf("append", "deposit amount must be positive, got %s", tx.Amount)
		}
	case TxPayment:
		if !tx.Amount.IsNegative() {
			return "", Validationf("append", "payment amount must be negative, got %s", tx.Amount)
		}
	case TxTransfer, TxReversal:
		// Either sign.
	default:
		return "", Validationf("append", "unknown transaction type %q", tx.Type)
	}

	txs, err := l.store.Transactions(ctx, tx.AccountID)
	if err != nil {
		return "", err
	}
	balance := decimal.Zero
	for _, t := range txs {
		balance = balance.Add(t.Amount)
	}

	// Caller-supplied snapshots must be internally consistent; they are then
	// recomputed at write time regardless.
	if !tx.BalanceBefore.IsZero() || !tx.BalanceAfter.IsZero() {
		if !tx.BalanceAfter.Equal(tx.BalanceBefore.Add(tx.Amount)) {
			return "", Validationf("append", "balance-after %s != balance-before %s + amount %s",
				tx.BalanceAfter, tx.BalanceBefore, tx.Amount)
		}
	}
	tx.BalanceBefore = balance
	tx.BalanceAfter = balance.Add(tx.Amount)

	if len(tx.Usages) > 0 {
		if err := l.validateUsages(tx, txs); err != nil {
			return "", err
		}
	}

	if tx.ID == "" {
		tx.ID = TransactionID(uuid.NewString())
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now()
	}

	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (l *Ledger) validateUsages(tx Transaction, txs []Transaction) error {
	if tx.UsageTotal().GreaterThan(tx.Amount.Abs()) {
		return Validationf("usage_breakdown", "usage total %s exceeds transaction amount %s",
			tx.UsageTotal(), tx.Amount.Abs())
	}

	byID := make(map[TransactionID]Transaction, len(txs))
	for _, t := range txs {
		byID[t.ID] = t
	}
	used := usageByDeposit(txs)

	// Requested usage per deposit, summed in case one deposit appears twice.
	requested := make(map[TransactionID]decimal.Decimal)
	for _, u := range tx.Usages {
		if !u.Amount.IsPositive() {
			return Validationf("usage_breakdown", "usage amount must be positive, got %s", u.Amount)
		}
		requested[u.DepositID] = requested[u.DepositID].Add(u.Amount)
	}

	for depID, want := range requested {
		dep, ok := byID[depID]
		if !ok || dep.Type != TxDeposit {
			return &NotFoundError{Kind: "deposit", ID: string(depID)}
		}
		remaining := dep.Amount.Sub(used[depID])
		if want.GreaterThan(remaining) {
			return &InsufficientFundsError{
				AccountID: tx.AccountID,
				DepositID: depID,
				Available: remaining,
				Requested: want,
			}
		}
	}
	return nil
}

// usageByDeposit sums every usage amount in the ledger per funding deposit.
func usageByDeposit(txs []Transaction) map[TransactionID]decimal.Decimal {
	used := make(map[TransactionID]decimal.Decimal)
	for _, tx := range txs {
		for _, u := range tx.Usages {
			used[u.DepositID] = used[u.DepositID].Add(u.Amount)
		}
	}
	return used
}

/*
Package ledger provides the resident account ledger: an append-only
transaction log with derived balances and per-deposit remaining amounts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a resident/payer identity; its balance is always derived
  - Transaction: an immutable ledger entry with balance snapshots
  - DepositUsage: attribution of a settlement to the deposits that fund it

DESIGN PRINCIPLES:
  1. Derived balance: never stored, always the sum of signed amounts
  2. Immutability: corrections are reversal transactions, not edits
     (the single exception is deposit field correction, see ledger.go)
  3. Precision: decimal.Decimal throughout, no float accumulation

SEE ALSO:
  - ledger.go: Ledger service with per-account serialization
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type TransactionID string

// =============================================================================
// ACCOUNT - Resident/payer ledger identity
// =============================================================================

// Account identifies a resident. Its balance is never stored: it is always
// the sum of the signed amounts of the account's transactions. Accounts are
// never physically deleted, only deactivated.
type Account struct {
	ID        AccountID
	Name      string
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	TxDeposit  TransactionType = "deposit"  // Money received in advance (positive)
	TxPayment  TransactionType = "payment"  // Invoice settlement (negative)
	TxTransfer TransactionType = "transfer" // Balance moved between accounts
	TxReversal TransactionType = "reversal" // Undo of a previous transaction
)

// Reference types for the optional document link a transaction carries.
const (
	RefInvoice = "invoice"
	RefDeposit = "deposit"
)

// ReversalRefPrefix marks a bank reference as belonging to a reversal.
// Deposits carrying it are excluded from funding lists.
const ReversalRefPrefix = "REV:"

// DepositUsage attributes part of a settlement to one funding deposit.
// The sum of a transaction's usages never exceeds its absolute amount, and
// no deposit's remaining may go negative across the whole ledger.
type DepositUsage struct {
	DepositID TransactionID
	Amount    decimal.Decimal
}

// Transaction is an immutable ledger entry. Deposits are positive, payments
// negative. BalanceBefore/BalanceAfter are snapshots computed at write time.
type Transaction struct {
	ID            TransactionID
	AccountID     AccountID
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal

	Method      string // payment method (cash, bank_transfer, cheque, ...)
	BankRef     string // external bank reference
	Description string

	// Optional link to the document that caused this entry.
	ReferenceType string
	ReferenceID   string

	// Ordered funding breakdown, present on deposit-funded settlements.
	Usages []DepositUsage

	CreatedAt time.Time
}

// IsReversalMarked reports whether the bank reference carries the reversal
// prefix convention.
func (t Transaction) IsReversalMarked() bool {
	return strings.HasPrefix(t.BankRef, ReversalRefPrefix)
}

// UsageTotal is the sum of the transaction's deposit-usage amounts.
func (t Transaction) UsageTotal() decimal.Decimal {
	total := decimal.Zero
	for _, u := range t.Usages {
		total = total.Add(u.Amount)
	}
	return total
}

// =============================================================================
// DEPOSIT - Funding view of a deposit transaction
// =============================================================================

// Deposit is the funding view of a deposit transaction: its original amount
// and how much of it is still consumable.
type Deposit struct {
	TransactionID  TransactionID
	OriginalAmount decimal.Decimal
	Remaining      decimal.Decimal
	Method         string
	BankRef        string
	CreatedAt      time.Time
}

// DepositPatch describes a correction to a deposit's own fields. Amount may
// only change while the deposit is unused; see Ledger.EditDeposit.
type DepositPatch struct {
	Amount      *decimal.Decimal
	Method      *string
	BankRef     *string
	Description *string
}

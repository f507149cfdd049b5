/*
store.go - Persistence interfaces for the transaction log and accounts

APPEND-ONLY CONTRACT:
  The transaction log has one write operation: AppendTransaction. There is
  no delete. UpdateTransactions exists solely for deposit field correction
  (Ledger.EditDeposit), which must rewrite balance snapshots of subsequent
  entries atomically; it is never used by settlement paths.

IMPLEMENTATIONS:
  - store/sqlite:   production SQLite store
  - store/postgres: PostgreSQL store (lib/pq)
  - store/memory:   in-memory store for tests/dev
*/
package ledger

import "context"

// Store persists the append-only transaction log.
type Store interface {
	// AppendTransaction persists one transaction.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// Transactions returns all transactions for an account, chronologically.
	Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// GetTransaction returns a transaction by id, or (nil, nil) if absent.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// UpdateTransactions rewrites the given transactions atomically.
	// Reserved for deposit correction; settlements never call it.
	UpdateTransactions(ctx context.Context, txs []Transaction) error
}

// AccountStore persists resident accounts. Accounts are soft-deactivated,
// never deleted.
type AccountStore interface {
	SaveAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	DeactivateAccount(ctx context.Context, id AccountID) error
}

/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

INTERFACES IMPLEMENTED:
  ledger.Store:        Append-only transaction log
  ledger.AccountStore: Resident account records
  invoice.Store:       Invoice summary state
  reconcile.Store:     Monthly reconciliation records (attachment inline)

APPEND-ONLY ENFORCEMENT:
  The transaction log has no DELETE path. The single UPDATE path is
  UpdateTransactions, reserved for deposit field correction and the snapshot
  rewrite it triggers; settlement and reversal paths only INSERT.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Per-account ordering is enforced
  above this layer by the ledger's account locks.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := ledger.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/reconcile"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Transactions: the append-only ledger
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		method TEXT,
		bank_ref TEXT,
		description TEXT,
		reference_type TEXT,
		reference_id TEXT,
		usages_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance and deposit listing (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id, created_at);

	-- Settlement lookups by invoice
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_type, reference_id)
		WHERE reference_id != '';

	-- Accounts are soft-deactivated, never deleted
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		property_id TEXT,
		customer TEXT,
		charges_json TEXT,
		subtotal TEXT NOT NULL,
		total_arrears TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		due_date TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status);

	-- One reconciliation record per calendar month, attachment inline
	CREATE TABLE IF NOT EXISTS reconciliations (
		month TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		attachment_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		attachment BLOB NOT NULL,
		saved_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION LOG (ledger.Store)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usagesJSON, err := json.Marshal(tx.Usages)
	if err != nil {
		return fmt.Errorf("failed to encode usages: %w", err)
	}

	query := `
		INSERT INTO transactions
		(id, account_id, tx_type, amount, balance_before, balance_after,
		 method, bank_ref, description, reference_type, reference_id, usages_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.Type,
		tx.Amount.String(),
		tx.BalanceBefore.String(),
		tx.BalanceAfter.String(),
		tx.Method,
		tx.BankRef,
		tx.Description,
		tx.ReferenceType,
		tx.ReferenceID,
		string(usagesJSON),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) Transactions(ctx context.Context, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := transactionSelect + `
		WHERE account_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, transactionSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	tx, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransactions rewrites the given transactions atomically. Only the
// mutable fields change; id, account, type, usages and created_at stay fixed.
func (s *Store) UpdateTransactions(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		UPDATE transactions
		SET amount = ?, balance_before = ?, balance_after = ?,
		    method = ?, bank_ref = ?, description = ?
		WHERE id = ?
	`
	for _, tx := range txs {
		res, err := sqlTx.ExecContext(ctx, query,
			tx.Amount.String(),
			tx.BalanceBefore.String(),
			tx.BalanceAfter.String(),
			tx.Method,
			tx.BankRef,
			tx.Description,
			tx.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &ledger.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
		}
	}
	return sqlTx.Commit()
}

const transactionSelect = `
	SELECT id, account_id, tx_type, amount, balance_before, balance_after,
	       method, bank_ref, description, reference_type, reference_id, usages_json, created_at
	FROM transactions`

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                           ledger.Transaction
		amount, before, after        string
		usagesJSON, createdAt        string
		method, bankRef, description sql.NullString
		referenceType, referenceID   sql.NullString
	)
	err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &amount, &before, &after,
		&method, &bankRef, &description, &referenceType, &referenceID, &usagesJSON, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if tx.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return tx, fmt.Errorf("bad balance_before %q: %w", before, err)
	}
	if tx.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return tx, fmt.Errorf("bad balance_after %q: %w", after, err)
	}
	tx.Method = method.String
	tx.BankRef = bankRef.String
	tx.Description = description.String
	tx.ReferenceType = referenceType.String
	tx.ReferenceID = referenceID.String

	if usagesJSON != "" && usagesJSON != "null" {
		if err := json.Unmarshal([]byte(usagesJSON), &tx.Usages); err != nil {
			return tx, fmt.Errorf("bad usages_json: %w", err)
		}
	}
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return tx, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	return tx, nil
}

// =============================================================================
// ACCOUNTS (ledger.AccountStore)
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO accounts (id, name, active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, boolToInt(a.Active), a.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a         ledger.Account
		active    int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Active = active != 0
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, active, created_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			a         ledger.Account
			active    int
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &active, &createdAt); err != nil {
			return nil, err
		}
		a.Active = active != 0
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) DeactivateAccount(ctx context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "account", ID: string(id)}
	}
	return nil
}

// =============================================================================
// INVOICES (invoice.Store)
// =============================================================================

func (s *Store) SaveInvoice(ctx context.Context, inv invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	chargesJSON, err := json.Marshal(inv.Charges)
	if err != nil {
		return fmt.Errorf("failed to encode charges: %w", err)
	}

	query := `
		INSERT INTO invoices
		(id, number, property_id, customer, charges_json, subtotal, total_arrears,
		 grand_total, due_date, total_paid, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			property_id = excluded.property_id,
			customer = excluded.customer,
			charges_json = excluded.charges_json,
			subtotal = excluded.subtotal,
			total_arrears = excluded.total_arrears,
			grand_total = excluded.grand_total,
			due_date = excluded.due_date,
			total_paid = excluded.total_paid,
			status = excluded.status
	`
	_, err = s.db.ExecContext(ctx, query,
		inv.ID, inv.Number, inv.PropertyID, inv.Customer, string(chargesJSON),
		inv.Subtotal.String(), inv.TotalArrears.String(), inv.GrandTotal.String(),
		inv.DueDate.UTC().Format(time.RFC3339), inv.TotalPaid.String(), inv.Status,
		inv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id invoice.ID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, invoiceSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	inv, err := scanInvoice(rows)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, invoiceSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const invoiceSelect = `
	SELECT id, number, property_id, customer, charges_json, subtotal, total_arrears,
	       grand_total, due_date, total_paid, status, created_at
	FROM invoices`

func scanInvoice(rows *sql.Rows) (invoice.Invoice, error) {
	var (
		inv                               invoice.Invoice
		propertyID, customer, chargesJSON sql.NullString
		subtotal, arrears, grand, paid    string
		dueDate, createdAt                string
	)
	err := rows.Scan(&inv.ID, &inv.Number, &propertyID, &customer, &chargesJSON,
		&subtotal, &arrears, &grand, &dueDate, &paid, &inv.Status, &createdAt)
	if err != nil {
		return inv, fmt.Errorf("failed to scan invoice: %w", err)
	}
	inv.PropertyID = propertyID.String
	inv.Customer = customer.String

	if chargesJSON.String != "" && chargesJSON.String != "null" {
		if err := json.Unmarshal([]byte(chargesJSON.String), &inv.Charges); err != nil {
			return inv, fmt.Errorf("bad charges_json: %w", err)
		}
	}
	if inv.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return inv, fmt.Errorf("bad subtotal %q: %w", subtotal, err)
	}
	if inv.TotalArrears, err = decimal.NewFromString(arrears); err != nil {
		return inv, fmt.Errorf("bad total_arrears %q: %w", arrears, err)
	}
	if inv.GrandTotal, err = decimal.NewFromString(grand); err != nil {
		return inv, fmt.Errorf("bad grand_total %q: %w", grand, err)
	}
	if inv.TotalPaid, err = decimal.NewFromString(paid); err != nil {
		return inv, fmt.Errorf("bad total_paid %q: %w", paid, err)
	}
	if inv.DueDate, err = time.Parse(time.RFC3339, dueDate); err != nil {
		return inv, fmt.Errorf("bad due_date %q: %w", dueDate, err)
	}
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return inv, nil
}

// =============================================================================
// RECONCILIATION (reconcile.Store)
// =============================================================================

func (s *Store) SaveRecord(ctx context.Context, rec reconcile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reconciliations (month, amount, attachment_id, filename, attachment, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(month) DO UPDATE SET
			amount = excluded.amount,
			attachment_id = excluded.attachment_id,
			filename = excluded.filename,
			attachment = excluded.attachment,
			saved_at = excluded.saved_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Month, rec.Amount.String(), rec.Attachment.ID, rec.Attachment.Filename,
		rec.Attachment.Data, rec.SavedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save reconciliation record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, month reconcile.MonthKey) (*reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec     reconcile.Record
		amount  string
		savedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT month, amount, attachment_id, filename, attachment, saved_at
		 FROM reconciliations WHERE month = ?`, month).
		Scan(&rec.Month, &amount, &rec.Attachment.ID, &rec.Attachment.Filename,
			&rec.Attachment.Data, &savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation record: %w", err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	rec.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Interface checks.
var (
	_ ledger.Store        = (*Store)(nil)
	_ ledger.AccountStore = (*Store)(nil)
	_ invoice.Store       = (*Store)(nil)
	_ reconcile.Store     = (*Store)(nil)
)

// Package memory provides an in-memory implementation of every store
// interface, for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/reconcile"
)

// Store keeps everything in maps behind one RWMutex. Reads return copies.
type Store struct {
	mu sync.RWMutex

	transactions map[ledger.AccountID][]ledger.Transaction
	byID         map[ledger.TransactionID]ledger.Transaction
	accounts     map[ledger.AccountID]ledger.Account
	invoices     map[invoice.ID]invoice.Invoice
	months       map[reconcile.MonthKey]reconcile.Record
}

func New() *Store {
	return &Store{
		transactions: make(map[ledger.AccountID][]ledger.Transaction),
		byID:         make(map[ledger.TransactionID]ledger.Transaction),
		accounts:     make(map[ledger.AccountID]ledger.Account),
		invoices:     make(map[invoice.ID]invoice.Invoice),
		months:       make(map[reconcile.MonthKey]reconcile.Record),
	}
}

// =============================================================================
// ledger.Store
// =============================================================================

func (s *Store) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.transactions[tx.AccountID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, ledger.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	s.transactions[tx.AccountID] = txs
	s.byID[tx.ID] = tx
	return nil
}

func (s *Store) Transactions(_ context.Context, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Transaction, len(s.transactions[accountID]))
	copy(result, s.transactions[accountID])
	return result, nil
}

func (s *Store) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (s *Store) UpdateTransactions(_ context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if _, ok := s.byID[tx.ID]; !ok {
			return &ledger.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
		}
	}
	for _, tx := range txs {
		s.byID[tx.ID] = tx
		list := s.transactions[tx.AccountID]
		for i := range list {
			if list[i].ID == tx.ID {
				list[i] = tx
				break
			}
		}
	}
	return nil
}

// =============================================================================
// ledger.AccountStore
// =============================================================================

func (s *Store) SaveAccount(_ context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeactivateAccount(_ context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "account", ID: string(id)}
	}
	a.Active = false
	s.accounts[id] = a
	return nil
}

// =============================================================================
// invoice.Store
// =============================================================================

func (s *Store) SaveInvoice(_ context.Context, inv invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = inv
	return nil
}

func (s *Store) GetInvoice(_ context.Context, id invoice.ID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (s *Store) ListInvoices(_ context.Context) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]invoice.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		result = append(result, inv)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// reconcile.Store
// =============================================================================

func (s *Store) SaveRecord(_ context.Context, rec reconcile.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.months[rec.Month] = rec
	return nil
}

func (s *Store) GetRecord(_ context.Context, month reconcile.MonthKey) (*reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.months[month]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Interface checks.
var (
	_ ledger.Store        = (*Store)(nil)
	_ ledger.AccountStore = (*Store)(nil)
	_ invoice.Store       = (*Store)(nil)
	_ reconcile.Store     = (*Store)(nil)
)

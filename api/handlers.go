/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the resident ledger and settlement engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                     List all accounts
    POST   /api/accounts                     Create account
    GET    /api/accounts/{id}                Get account details
    POST   /api/accounts/{id}/deactivate     Soft-deactivate account
    GET    /api/accounts/{id}/balance        Derived ledger balance
    GET    /api/accounts/{id}/transactions   Full transaction history
    GET    /api/accounts/{id}/deposits       Deposits with remaining value
    POST   /api/accounts/{id}/deposits       Record an incoming deposit
    GET    /api/accounts/{id}/funding        Balance + consumable deposits

  Deposits:
    PUT    /api/deposits/{id}                Correct deposit fields
    POST   /api/deposits/{id}/reverse        Refund remaining value

  Invoices:
    GET    /api/invoices                     List with balances as of a date
    POST   /api/invoices                     Create invoice
    GET    /api/invoices/{id}                Get with balance as of a date

  Settlements:
    POST   /api/settlements                  Submit a settlement batch

  Reconciliation:
    GET    /api/reconciliation/{month}       Saved record for YYYY-MM
    PUT    /api/reconciliation/{month}       Save amount + attachment

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (deposit already drawn on, duplicate account)
  - 422: Insufficient funds or deposit value
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/money"
	"github.com/warp/billing-engine/reconcile"
	"github.com/warp/billing-engine/settle"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger   *ledger.Ledger
	Accounts ledger.AccountStore
	Invoices invoice.Store
	Engine   *settle.Engine
	Tracker  *reconcile.Tracker
	Log      *zap.Logger

	now func() time.Time

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the domain services.
func NewHandler(l *ledger.Ledger, accounts ledger.AccountStore, invoices invoice.Store,
	engine *settle.Engine, tracker *reconcile.Tracker, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Ledger:   l,
		Accounts: accounts,
		Invoices: invoices,
		Engine:   engine,
		Tracker:  tracker,
		Log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates a new resident account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Account name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	existing, err := h.Accounts.GetAccount(r.Context(), ledger.AccountID(req.ID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check account", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Account already exists", nil)
		return
	}

	account := ledger.Account{
		ID:        ledger.AccountID(req.ID),
		Name:      req.Name,
		Active:    true,
		CreatedAt: h.now(),
	}
	if err := h.Accounts.SaveAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}

	h.Log.Info("account created", zap.String("account_id", req.ID))
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	account, err := h.Accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// DeactivateAccount marks the account inactive; its ledger history stays.
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	if err := h.Accounts.DeactivateAccount(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to deactivate account", err)
		return
	}
	h.Log.Info("account deactivated", zap.String("account_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

// GetBalance returns the account's derived ledger balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	if ok := h.requireAccount(w, r, id); !ok {
		return
	}
	balance, err := h.Ledger.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{AccountID: string(id), Balance: balance.String()})
}

// GetTransactions returns the account's full transaction history.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	if ok := h.requireAccount(w, r, id); !ok {
		return
	}
	txs, err := h.Ledger.Transactions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListDeposits returns the account's deposits with remaining values.
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	if ok := h.requireAccount(w, r, id); !ok {
		return
	}
	deposits, err := h.Ledger.ListDeposits(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deposits", err)
		return
	}

	dtos := make([]DepositDTO, len(deposits))
	for i, d := range deposits {
		dtos[i] = toDepositDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDeposit appends a deposit transaction to the account's ledger.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	account, err := h.Accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	if !account.Active {
		writeError(w, http.StatusBadRequest, "Account is inactive", ledger.ErrAccountInactive)
		return
	}

	txID, err := h.Ledger.Append(r.Context(), ledger.Transaction{
		AccountID:   id,
		Type:        ledger.TxDeposit,
		Amount:      amount,
		Method:      req.Method,
		BankRef:     req.BankRef,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, "Failed to record deposit", err)
		return
	}

	tx, err := h.Ledger.GetTransaction(r.Context(), txID)
	if err != nil || tx == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load recorded deposit", err)
		return
	}
	h.Log.Info("deposit recorded",
		zap.String("account_id", string(id)),
		zap.String("transaction_id", string(txID)),
		zap.String("amount", amount.String()))
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// GetFundingOptions returns the balance and consumable deposits a settlement
// could draw on.
func (h *Handler) GetFundingOptions(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	opts, err := h.Engine.ListFundingOptions(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list funding options", err)
		return
	}

	dto := FundingOptionsDTO{
		AccountID: string(opts.AccountID),
		Balance:   opts.Balance.String(),
		Deposits:  make([]DepositDTO, len(opts.Deposits)),
	}
	for i, d := range opts.Deposits {
		dto.Deposits[i] = toDepositDTO(d)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// DEPOSIT CORRECTION HANDLERS
// =============================================================================

// EditDeposit corrects a deposit's own fields. Amount edits only succeed
// while no settlement has drawn on the deposit.
func (h *Handler) EditDeposit(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req EditDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := ledger.DepositPatch{
		Method:      req.Method,
		BankRef:     req.BankRef,
		Description: req.Description,
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		patch.Amount = &amount
	}

	tx, err := h.Ledger.EditDeposit(r.Context(), id, patch)
	if err != nil {
		writeDomainError(w, "Failed to edit deposit", err)
		return
	}
	h.Log.Info("deposit corrected", zap.String("transaction_id", string(id)))
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// ReverseDeposit refunds the deposit's remaining value with a reversal
// transaction. The original row is never touched.
func (h *Handler) ReverseDeposit(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	var req ReverseDepositRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	revID, err := h.Ledger.ReverseDeposit(r.Context(), id, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reverse deposit", err)
		return
	}

	tx, err := h.Ledger.GetTransaction(r.Context(), revID)
	if err != nil || tx == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load reversal", err)
		return
	}
	h.Log.Info("deposit reversed",
		zap.String("deposit_id", string(id)),
		zap.String("reversal_id", string(revID)))
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns all invoices with balances computed as of the
// optional as_of query parameter (default: now).
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}

	invoices, err := h.Invoices.ListInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = toInvoiceDTO(&invoices[i], asOf)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns a single invoice with its balance as of a date.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := invoice.ID(chi.URLParam(r, "id"))

	asOf, err := h.parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}

	inv, err := h.Invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get invoice", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, asOf))
}

// CreateInvoice creates an invoice from its charge lines.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Type == "" || len(req.Charges) == 0 {
		writeError(w, http.StatusBadRequest, "Invoice type and at least one charge are required", nil)
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due_date", err)
		return
	}

	inv := invoice.Invoice{
		ID:         invoice.ID(req.ID),
		Number:     invoice.NewNumber(req.Type, dueDate.Year(), dueDate.Month(), req.Sequence),
		PropertyID: req.PropertyID,
		Customer:   req.Customer,
		DueDate:    dueDate,
		Status:     invoice.StatusUnpaid,
		CreatedAt:  h.now(),
	}
	if inv.ID == "" {
		inv.ID = invoice.ID(uuid.NewString())
	}
	for _, c := range req.Charges {
		charge, err := parseCharge(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid charge", err)
			return
		}
		inv.Charges = append(inv.Charges, charge)
	}
	inv.RecomputeTotals()

	if err := h.Invoices.SaveInvoice(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save invoice", err)
		return
	}
	h.Log.Info("invoice created",
		zap.String("invoice_id", string(inv.ID)),
		zap.String("number", inv.Number),
		zap.String("grand_total", inv.GrandTotal.String()))
	writeJSON(w, http.StatusCreated, toInvoiceDTO(&inv, h.now()))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// SubmitSettlement runs one settlement batch. Validation failures reject the
// whole batch; per-invoice failures after commit starts are reported in the
// outcome list.
func (h *Handler) SubmitSettlement(w http.ResponseWriter, r *http.Request) {
	var req SubmitSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	domainReq, err := h.toSettleRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settlement request", err)
		return
	}

	result, err := h.Engine.Submit(r.Context(), domainReq)
	if err != nil {
		writeDomainError(w, "Settlement rejected", err)
		return
	}

	dto := SettlementResultDTO{
		AllSettled:   result.AllSettled(),
		SettledCount: result.SettledCount(),
		Outcomes:     make([]SettlementOutcomeDTO, len(result.Outcomes)),
	}
	for i, o := range result.Outcomes {
		out := SettlementOutcomeDTO{
			InvoiceID:     string(o.InvoiceID),
			Requested:     o.Requested.String(),
			TransactionID: string(o.TransactionID),
			Status:        string(o.Status),
		}
		if o.Err != nil {
			out.Error = o.Err.Error()
		}
		dto.Outcomes[i] = out
	}

	status := http.StatusOK
	if !dto.AllSettled {
		// Partial or zero success still reports per-invoice outcomes.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, dto)
}

func (h *Handler) toSettleRequest(req SubmitSettlementRequest) (settle.Request, error) {
	out := settle.Request{
		AccountID:   ledger.AccountID(req.AccountID),
		Method:      req.Method,
		BankRef:     req.BankRef,
		Description: req.Description,
	}
	if req.PaymentAmount != "" {
		amount, err := decimal.NewFromString(req.PaymentAmount)
		if err != nil {
			return out, err
		}
		out.PaymentAmount = amount
	}
	for _, use := range req.DepositUses {
		amount, err := decimal.NewFromString(use.Amount)
		if err != nil {
			return out, err
		}
		out.DepositUses = append(out.DepositUses, settle.DepositUse{
			DepositID: ledger.TransactionID(use.DepositID),
			Amount:    amount,
		})
	}
	for _, ir := range req.Invoices {
		amount, err := decimal.NewFromString(ir.Amount)
		if err != nil {
			return out, err
		}
		out.Invoices = append(out.Invoices, settle.InvoiceRequest{
			InvoiceID: invoice.ID(ir.InvoiceID),
			Amount:    amount,
		})
	}
	if req.AsOf != "" {
		asOf, err := parseDate(req.AsOf)
		if err != nil {
			return out, err
		}
		out.AsOf = asOf
	}
	return out, nil
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// GetReconciliation returns the saved record for a month, if any.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	month, err := reconcile.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	rec, err := h.Tracker.Get(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get reconciliation", err)
		return
	}

	computed, err := h.monthDepositTotal(r, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute month total", err)
		return
	}

	dto := ReconciliationDTO{Month: string(month), ComputedTotal: computed.String()}
	if rec != nil {
		dto.Amount = rec.Amount.String()
		dto.AttachmentID = rec.Attachment.ID
		dto.Filename = rec.Attachment.Filename
		dto.SavedAt = rec.SavedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// SaveReconciliation saves the month's reconciled amount with its attachment.
// The save is rejected unless the entered amount matches the ledger's banked
// total for the month.
func (h *Handler) SaveReconciliation(w http.ResponseWriter, r *http.Request) {
	month, err := reconcile.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	var req SaveReconciliationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	suspense := decimal.Zero
	if req.SuspenseAmount != "" {
		suspense, err = decimal.NewFromString(req.SuspenseAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid suspense amount", err)
			return
		}
	}
	data, err := base64.StdEncoding.DecodeString(req.Attachment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid attachment encoding", err)
		return
	}

	depositTotal, err := h.monthDepositTotal(r, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute month total", err)
		return
	}
	computed := money.Sum(depositTotal, suspense)

	rec, err := h.Tracker.Save(r.Context(), month, amount, computed, req.Filename, data)
	if err != nil {
		writeDomainError(w, "Failed to save reconciliation", err)
		return
	}
	h.Log.Info("month reconciled",
		zap.String("month", string(month)),
		zap.String("amount", amount.String()))
	writeJSON(w, http.StatusOK, ReconciliationDTO{
		Month:         string(rec.Month),
		Amount:        rec.Amount.String(),
		ComputedTotal: computed.String(),
		AttachmentID:  rec.Attachment.ID,
		Filename:      rec.Attachment.Filename,
		SavedAt:       rec.SavedAt.Format(time.RFC3339),
	})
}

// monthDepositTotal sums the banked deposit movement for a month across all
// accounts: deposits in, reversals out.
func (h *Handler) monthDepositTotal(r *http.Request, month reconcile.MonthKey) (decimal.Decimal, error) {
	start, _ := time.Parse("2006-01", string(month))
	end := start.AddDate(0, 1, 0)

	accounts, err := h.Accounts.ListAccounts(r.Context())
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, a := range accounts {
		txs, err := h.Ledger.Transactions(r.Context(), a.ID)
		if err != nil {
			return decimal.Zero, err
		}
		for _, tx := range txs {
			if tx.Type != ledger.TxDeposit && tx.Type != ledger.TxReversal {
				continue
			}
			if tx.CreatedAt.Before(start) || !tx.CreatedAt.Before(end) {
				continue
			}
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// requireAccount 404s when the account does not exist. Returns true when the
// request may proceed.
func (h *Handler) requireAccount(w http.ResponseWriter, r *http.Request, id ledger.AccountID) bool {
	account, err := h.Accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check account", err)
		return false
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return false
	}
	return true
}

func (h *Handler) parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return h.now(), nil
	}
	return parseDate(s)
}

// parseDate accepts RFC3339 timestamps and bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func parseCharge(c ChargeDTO) (invoice.Charge, error) {
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return invoice.Charge{}, err
	}
	arrears := decimal.Zero
	if c.Arrears != "" {
		if arrears, err = decimal.NewFromString(c.Arrears); err != nil {
			return invoice.Charge{}, err
		}
	}
	return invoice.Charge{
		Type:        c.Type,
		Description: c.Description,
		Amount:      amount,
		Arrears:     arrears,
	}, nil
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Active:    a.Active,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:            string(tx.ID),
		AccountID:     string(tx.AccountID),
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		BalanceBefore: tx.BalanceBefore.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Method:        tx.Method,
		BankRef:       tx.BankRef,
		Description:   tx.Description,
		ReferenceType: string(tx.ReferenceType),
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
	for _, u := range tx.Usages {
		dto.Usages = append(dto.Usages, UsageDTO{
			DepositID: string(u.DepositID),
			Amount:    u.Amount.String(),
		})
	}
	return dto
}

func toDepositDTO(d ledger.Deposit) DepositDTO {
	return DepositDTO{
		ID:             string(d.TransactionID),
		OriginalAmount: d.OriginalAmount.String(),
		Remaining:      d.Remaining.String(),
		Method:         d.Method,
		BankRef:        d.BankRef,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
	}
}

func toInvoiceDTO(inv *invoice.Invoice, asOf time.Time) InvoiceDTO {
	dto := InvoiceDTO{
		ID:              string(inv.ID),
		Number:          inv.Number,
		PropertyID:      inv.PropertyID,
		Customer:        inv.Customer,
		Subtotal:        inv.Subtotal.String(),
		TotalArrears:    inv.TotalArrears.String(),
		GrandTotal:      inv.GrandTotal.String(),
		DueDate:         inv.DueDate.Format("2006-01-02"),
		TotalPaid:       inv.TotalPaid.String(),
		Status:          string(inv.Status),
		EffectiveAmount: invoice.EffectiveAmount(inv, asOf).String(),
		Balance:         invoice.Balance(inv, asOf).String(),
		AsOf:            asOf.Format(time.RFC3339),
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
	}
	for _, c := range inv.Charges {
		dto.Charges = append(dto.Charges, ChargeDTO{
			Type:        c.Type,
			Description: c.Description,
			Amount:      c.Amount.String(),
			Arrears:     c.Arrears.String(),
		})
	}
	return dto
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrDepositInUse):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

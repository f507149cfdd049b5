/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Seeds the stores with recognizable datasets so the API can be explored
  without hand-crafting deposits and invoices. Each load creates fresh
  accounts and invoices with new ids; nothing existing is touched, which
  keeps the ledger append-only even across demo loads.

AVAILABLE SCENARIOS:
  fresh-start        One empty account, no activity
  deposit-on-file    Deposits banked, two open invoices to settle
  overdue-surcharge  An invoice past its grace window, surcharge applies
  month-end          Several accounts with banked deposits, ready for
                     reconciliation of the current month

USAGE VIA API:
  POST /api/scenarios/load
  {"id": "deposit-on-file"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxx(ctx)
 3. Add case to LoadScenario handler

SEE ALSO:
  - handlers.go: Handler context and response helpers
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/money"
)

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh start",
		Description: "One empty resident account with no ledger activity.",
	},
	{
		ID:          "deposit-on-file",
		Name:        "Deposit on file",
		Description: "Two banked deposits (5000 and 3000) and two open invoices (4500 and 1500) ready for a deposit-funded settlement.",
	},
	{
		ID:          "overdue-surcharge",
		Name:        "Overdue with surcharge",
		Description: "A 9000 invoice ten days past due: the balance includes the 10% late surcharge.",
	},
	{
		ID:          "month-end",
		Name:        "Month end",
		Description: "Three accounts with deposits banked this month, ready to reconcile against a statement.",
	},
}

// ListScenarios returns all demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario id, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario": h.currentScenario})
}

// LoadScenario seeds the selected scenario's dataset.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		resp LoadScenarioResponse
		err  error
	)
	ctx := r.Context()
	switch req.ID {
	case "fresh-start":
		resp, err = h.loadFreshStart(ctx)
	case "deposit-on-file":
		resp, err = h.loadDepositOnFile(ctx)
	case "overdue-surcharge":
		resp, err = h.loadOverdueSurcharge(ctx)
	case "month-end":
		resp, err = h.loadMonthEnd(ctx)
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ID
	resp.Scenario = req.ID
	h.Log.Info("scenario loaded", zap.String("scenario", req.ID))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadFreshStart(ctx context.Context) (LoadScenarioResponse, error) {
	id, err := h.seedAccount(ctx, "Unit 1A - N. Adeyemi")
	if err != nil {
		return LoadScenarioResponse{}, err
	}
	return LoadScenarioResponse{AccountIDs: []string{string(id)}}, nil
}

func (h *Handler) loadDepositOnFile(ctx context.Context) (LoadScenarioResponse, error) {
	accountID, err := h.seedAccount(ctx, "Unit 4B - B. Okoye")
	if err != nil {
		return LoadScenarioResponse{}, err
	}

	for _, d := range []struct {
		amount  int64
		bankRef string
	}{
		{5000, "GTB-20260810-114"},
		{3000, "GTB-20260824-221"},
	} {
		if err := h.seedDeposit(ctx, accountID, d.amount, d.bankRef); err != nil {
			return LoadScenarioResponse{}, err
		}
	}

	due := h.now().AddDate(0, 0, 14)
	inv1, err := h.seedInvoice(ctx, "water", 1, "Unit 4B", "B. Okoye", 4500, due)
	if err != nil {
		return LoadScenarioResponse{}, err
	}
	inv2, err := h.seedInvoice(ctx, "power", 2, "Unit 4B", "B. Okoye", 1500, due)
	if err != nil {
		return LoadScenarioResponse{}, err
	}

	return LoadScenarioResponse{
		AccountIDs: []string{string(accountID)},
		InvoiceIDs: []string{string(inv1), string(inv2)},
	}, nil
}

func (h *Handler) loadOverdueSurcharge(ctx context.Context) (LoadScenarioResponse, error) {
	accountID, err := h.seedAccount(ctx, "Unit 7C - T. Mensah")
	if err != nil {
		return LoadScenarioResponse{}, err
	}
	if err := h.seedDeposit(ctx, accountID, 12000, "ZEN-20260801-078"); err != nil {
		return LoadScenarioResponse{}, err
	}

	// Ten days past due: well beyond the grace window.
	due := h.now().AddDate(0, 0, -10)
	invID, err := h.seedInvoice(ctx, "service", 1, "Unit 7C", "T. Mensah", 9000, due)
	if err != nil {
		return LoadScenarioResponse{}, err
	}

	return LoadScenarioResponse{
		AccountIDs: []string{string(accountID)},
		InvoiceIDs: []string{string(invID)},
	}, nil
}

func (h *Handler) loadMonthEnd(ctx context.Context) (LoadScenarioResponse, error) {
	var accountIDs []string
	for i, seed := range []struct {
		name   string
		amount int64
	}{
		{"Unit 2A - K. Diallo", 40000},
		{"Unit 3F - A. Banda", 55000},
		{"Unit 5D - E. Chukwu", 30000},
	} {
		accountID, err := h.seedAccount(ctx, seed.name)
		if err != nil {
			return LoadScenarioResponse{}, err
		}
		bankRef := fmt.Sprintf("UBA-%s-%03d", h.now().Format("20060102"), i+1)
		if err := h.seedDeposit(ctx, accountID, seed.amount, bankRef); err != nil {
			return LoadScenarioResponse{}, err
		}
		accountIDs = append(accountIDs, string(accountID))
	}
	return LoadScenarioResponse{AccountIDs: accountIDs}, nil
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (h *Handler) seedAccount(ctx context.Context, name string) (ledger.AccountID, error) {
	account := ledger.Account{
		ID:        ledger.AccountID(uuid.NewString()),
		Name:      name,
		Active:    true,
		CreatedAt: h.now(),
	}
	if err := h.Accounts.SaveAccount(ctx, account); err != nil {
		return "", err
	}
	return account.ID, nil
}

func (h *Handler) seedDeposit(ctx context.Context, accountID ledger.AccountID, amount int64, bankRef string) error {
	_, err := h.Ledger.Append(ctx, ledger.Transaction{
		AccountID:   accountID,
		Type:        ledger.TxDeposit,
		Amount:      money.FromInt(amount),
		Method:      "bank_transfer",
		BankRef:     bankRef,
		Description: "demo deposit",
	})
	return err
}

func (h *Handler) seedInvoice(ctx context.Context, invType string, seq int, propertyID, customer string, amount int64, due time.Time) (invoice.ID, error) {
	inv := invoice.Invoice{
		ID:         invoice.ID(uuid.NewString()),
		Number:     invoice.NewNumber(invType, due.Year(), due.Month(), seq),
		PropertyID: propertyID,
		Customer:   customer,
		Charges: []invoice.Charge{
			{Type: invType, Description: "demo charge", Amount: decimal.NewFromInt(amount)},
		},
		DueDate:   due,
		Status:    invoice.StatusUnpaid,
		CreatedAt: h.now(),
	}
	inv.RecomputeTotals()
	if err := h.Invoices.SaveInvoice(ctx, inv); err != nil {
		return "", err
	}
	return inv.ID, nil
}

/*
engine.go - The settlement kernel

Two call shapes share this kernel: balance-funded (a funding cap drawn from
the account's general balance) and deposit-funded (named deposits, each
contributing a fixed amount). Validation is all-or-nothing and happens
before any write; execution settles invoices sequentially in caller order,
each inside the account's critical section.

COMMIT SEMANTICS:
  Each invoice settlement commits independently. If one fails mid-batch
  (e.g. a concurrent writer shrank a deposit between validation and
  execution), prior settlements stay committed and the caller gets a
  per-invoice outcome list. All-or-nothing batches were considered and
  rejected; see DESIGN.md.

PROPORTIONAL FUNDING:
  Every invoice draws from every deposit in the funding set, proportionally
  to its share of the whole batch. Splits use cumulative rounding per
  deposit: the running share is rounded and the already-assigned part
  subtracted, so each deposit's contributions sum exactly to its amountToUse
  and the rounding residue lands on the last invoice deterministically.
*/
package settle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/money"
)

// Engine validates and executes settlement batches.
type Engine struct {
	ledger   *ledger.Ledger
	accounts ledger.AccountStore
	invoices invoice.Store
	events   EventPublisher
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(l *ledger.Ledger, accounts ledger.AccountStore, invoices invoice.Store) *Engine {
	return &Engine{
		ledger:   l,
		accounts: accounts,
		invoices: invoices,
		log:      zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents attaches a best-effort settlement event publisher.
func (e *Engine) WithEvents(pub EventPublisher) *Engine {
	e.events = pub
	return e
}

// WithLogger attaches a structured logger.
func (e *Engine) WithLogger(log *zap.Logger) *Engine {
	e.log = log
	return e
}

// =============================================================================
// FUNDING OPTIONS
// =============================================================================

// FundingOptions is what a caller can pay with: the general balance and the
// deposits that still have something left.
type FundingOptions struct {
	AccountID ledger.AccountID
	Balance   decimal.Decimal
	Deposits  []ledger.Deposit
}

// ListFundingOptions returns the account's balance and consumable deposits.
func (e *Engine) ListFundingOptions(ctx context.Context, accountID ledger.AccountID) (*FundingOptions, error) {
	acc, err := e.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, &ledger.NotFoundError{Kind: "account", ID: string(accountID)}
	}

	balance, err := e.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	deposits, err := e.ledger.ListDeposits(ctx, accountID)
	if err != nil {
		return nil, err
	}
	opts := &FundingOptions{AccountID: accountID, Balance: balance}
	for _, d := range deposits {
		if d.Remaining.IsPositive() {
			opts.Deposits = append(opts.Deposits, d)
		}
	}
	return opts, nil
}

// ClampToBalances caps each requested amount at the invoice's current
// balance. This is the request-shaping step the caller owns; Submit still
// re-validates every amount.
func (e *Engine) ClampToBalances(ctx context.Context, reqs []InvoiceRequest, asOf time.Time) ([]InvoiceRequest, error) {
	shaped := make([]InvoiceRequest, 0, len(reqs))
	for _, ir := range reqs {
		inv, err := e.invoices.GetInvoice(ctx, ir.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv == nil {
			return nil, &ledger.NotFoundError{Kind: "invoice", ID: string(ir.InvoiceID)}
		}
		if bal := invoice.Balance(inv, asOf); ir.Amount.GreaterThan(bal) {
			ir.Amount = bal
		}
		shaped = append(shaped, ir)
	}
	return shaped, nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit validates the batch and settles its invoices sequentially.
//
// A validation or not-found failure returns (Result{}, err) with nothing
// written. After validation passes, failures are per-invoice: the returned
// Result lists which invoices settled and which did not, and err is nil.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}

	if err := e.validate(ctx, req, asOf); err != nil {
		e.log.Warn("settlement batch rejected",
			zap.String("account_id", string(req.AccountID)),
			zap.Error(err))
		return Result{}, err
	}

	splits := computeSplits(req)

	result := Result{Outcomes: make([]Outcome, 0, len(req.Invoices))}
	for j, ir := range req.Invoices {
		out := e.settleOne(ctx, req, ir, splits[j], asOf)
		result.Outcomes = append(result.Outcomes, out)

		if out.Settled() {
			e.log.Info("invoice settled",
				zap.String("account_id", string(req.AccountID)),
				zap.String("invoice_id", string(ir.InvoiceID)),
				zap.String("amount", ir.Amount.String()),
				zap.String("transaction_id", string(out.TransactionID)))
			e.publish(ctx, req, out, asOf)
		} else {
			e.log.Warn("invoice settlement failed",
				zap.String("account_id", string(req.AccountID)),
				zap.String("invoice_id", string(ir.InvoiceID)),
				zap.Error(out.Err))
		}
	}
	return result, nil
}

// validate enforces every precondition before any write. A NotFound aborts
// the whole batch; rule violations name the violated rule.
func (e *Engine) validate(ctx context.Context, req Request, asOf time.Time) error {
	acc, err := e.accounts.GetAccount(ctx, req.AccountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return &ledger.NotFoundError{Kind: "account", ID: string(req.AccountID)}
	}
	if !acc.Active {
		return ledger.ErrAccountInactive
	}
	if len(req.Invoices) == 0 {
		return ledger.Validationf("settlement", "at least one invoice is required")
	}

	for _, ir := range req.Invoices {
		if !ir.Amount.IsPositive() {
			return ledger.Validationf("settlement", "requested amount for invoice %s must be positive, got %s",
				ir.InvoiceID, ir.Amount)
		}
		inv, err := e.invoices.GetInvoice(ctx, ir.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return &ledger.NotFoundError{Kind: "invoice", ID: string(ir.InvoiceID)}
		}
		if bal := invoice.Balance(inv, asOf); ir.Amount.GreaterThan(bal) {
			return ledger.Validationf("invoice_balance", "invoice %s: requested %s exceeds balance %s",
				ir.InvoiceID, ir.Amount, bal)
		}
	}

	// Strict equality: the batch must allocate the funding exactly, not
	// merely stay under it.
	requested := req.RequestedTotal()
	funding := req.FundingTotal()
	if diff := requested.Sub(funding); !diff.IsZero() {
		if diff.IsPositive() {
			return ledger.Validationf("exact_allocation", "allocated %s exceeds funding %s by %s",
				requested, funding, diff)
		}
		return ledger.Validationf("exact_allocation", "allocated %s falls short of funding %s by %s",
			requested, funding, diff.Neg())
	}

	if req.DepositFunded() {
		return e.validateDepositFunding(ctx, req)
	}
	return e.validateBalanceFunding(ctx, req)
}

func (e *Engine) validateDepositFunding(ctx context.Context, req Request) error {
	deposits, err := e.ledger.ListDeposits(ctx, req.AccountID)
	if err != nil {
		return err
	}
	remaining := make(map[ledger.TransactionID]decimal.Decimal, len(deposits))
	for _, d := range deposits {
		remaining[d.TransactionID] = d.Remaining
	}

	use := make(map[ledger.TransactionID]decimal.Decimal)
	for _, u := range req.DepositUses {
		if !u.Amount.IsPositive() {
			return ledger.Validationf("deposit_funding", "amount to use from deposit %s must be positive, got %s",
				u.DepositID, u.Amount)
		}
		use[u.DepositID] = use[u.DepositID].Add(u.Amount)
	}
	for depID, want := range use {
		rem, ok := remaining[depID]
		if !ok {
			return &ledger.NotFoundError{Kind: "deposit", ID: string(depID)}
		}
		if want.GreaterThan(rem) {
			return ledger.Validationf("deposit_funding", "deposit %s: amount to use %s exceeds remaining %s",
				depID, want, rem)
		}
	}
	return nil
}

func (e *Engine) validateBalanceFunding(ctx context.Context, req Request) error {
	if !req.PaymentAmount.IsPositive() {
		return ledger.Validationf("balance_funding", "payment amount must be positive, got %s", req.PaymentAmount)
	}
	balance, err := e.ledger.GetBalance(ctx, req.AccountID)
	if err != nil {
		return err
	}
	if req.PaymentAmount.GreaterThan(balance) {
		return ledger.Validationf("balance_funding", "payment amount %s exceeds account balance %s",
			req.PaymentAmount, balance)
	}
	return nil
}

// settleOne commits one invoice settlement inside the account critical
// section: re-validate against current state, append the transaction, and
// write back the invoice totals in the same section.
func (e *Engine) settleOne(ctx context.Context, req Request, ir InvoiceRequest, usages []ledger.DepositUsage, asOf time.Time) Outcome {
	out := Outcome{InvoiceID: ir.InvoiceID, Requested: ir.Amount}

	out.Err = e.ledger.WithAccount(ctx, req.AccountID, func(ac *ledger.AccountTx) error {
		inv, err := e.invoices.GetInvoice(ctx, ir.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return &ledger.NotFoundError{Kind: "invoice", ID: string(ir.InvoiceID)}
		}
		if bal := invoice.Balance(inv, asOf); ir.Amount.GreaterThan(bal) {
			return ledger.Validationf("invoice_balance", "invoice %s: requested %s exceeds balance %s",
				ir.InvoiceID, ir.Amount, bal)
		}

		if !req.DepositFunded() {
			balance, err := ac.Balance(ctx)
			if err != nil {
				return err
			}
			if ir.Amount.GreaterThan(balance) {
				return &ledger.InsufficientFundsError{
					AccountID: req.AccountID,
					Available: balance,
					Requested: ir.Amount,
				}
			}
		}

		// Append validates deposit remainders again; a concurrent shrink
		// surfaces as InsufficientFunds for this invoice only.
		txID, err := ac.Append(ctx, ledger.Transaction{
			Type:          ledger.TxPayment,
			Amount:        ir.Amount.Neg(),
			Method:        req.Method,
			BankRef:       req.BankRef,
			Description:   req.Description,
			ReferenceType: ledger.RefInvoice,
			ReferenceID:   string(ir.InvoiceID),
			Usages:        usages,
		})
		if err != nil {
			return err
		}

		inv.TotalPaid = inv.TotalPaid.Add(ir.Amount)
		inv.Status = invoice.StatusFor(inv, asOf)
		if err := e.invoices.SaveInvoice(ctx, *inv); err != nil {
			return err
		}

		out.TransactionID = txID
		out.Status = inv.Status
		return nil
	})
	return out
}

func (e *Engine) publish(ctx context.Context, req Request, out Outcome, asOf time.Time) {
	if e.events == nil {
		return
	}
	err := e.events.Publish(ctx, Event{
		TransactionID: out.TransactionID,
		AccountID:     req.AccountID,
		InvoiceID:     out.InvoiceID,
		Amount:        out.Requested,
		Status:        out.Status,
		SettledAt:     asOf,
	})
	if err != nil {
		e.log.Warn("settlement event publish failed",
			zap.String("transaction_id", string(out.TransactionID)),
			zap.Error(err))
	}
}

// =============================================================================
// PROPORTIONAL SPLIT
// =============================================================================

// computeSplits derives each invoice's per-deposit contributions. Cumulative
// rounding keeps every deposit's contributions summing exactly to its
// amountToUse; any residue that would push an invoice's usage total above
// its settled amount is trimmed from that invoice's last usage entry.
func computeSplits(req Request) [][]ledger.DepositUsage {
	splits := make([][]ledger.DepositUsage, len(req.Invoices))
	if !req.DepositFunded() {
		return splits
	}

	total := req.RequestedTotal()
	cumulative := decimal.Zero
	assigned := make([]decimal.Decimal, len(req.DepositUses))

	for j, ir := range req.Invoices {
		cumulative = cumulative.Add(ir.Amount)
		share := cumulative.Div(total)

		var usages []ledger.DepositUsage
		usageTotal := decimal.Zero
		for i, use := range req.DepositUses {
			cumShare := money.Round(use.Amount.Mul(share))
			c := cumShare.Sub(assigned[i])
			assigned[i] = cumShare
			if c.IsPositive() {
				usages = append(usages, ledger.DepositUsage{DepositID: use.DepositID, Amount: c})
				usageTotal = usageTotal.Add(c)
			}
		}

		// Keep the breakdown invariant: usage total never exceeds the
		// settled amount.
		if excess := usageTotal.Sub(ir.Amount); excess.IsPositive() {
			for k := len(usages) - 1; k >= 0 && excess.IsPositive(); k-- {
				cut := decimal.Min(excess, usages[k].Amount)
				usages[k].Amount = usages[k].Amount.Sub(cut)
				assigned[indexOf(req.DepositUses, usages[k].DepositID)] =
					assigned[indexOf(req.DepositUses, usages[k].DepositID)].Sub(cut)
				excess = excess.Sub(cut)
			}
			trimmed := usages[:0]
			for _, u := range usages {
				if u.Amount.IsPositive() {
					trimmed = append(trimmed, u)
				}
			}
			usages = trimmed
		}
		splits[j] = usages
	}
	return splits
}

func indexOf(uses []DepositUse, id ledger.TransactionID) int {
	for i, u := range uses {
		if u.DepositID == id {
			return i
		}
	}
	return 0
}

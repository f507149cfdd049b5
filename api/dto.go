/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts cross the wire as JSON strings ("4500", "-120.50") and are
  parsed with shopspring/decimal. Floats never touch money.

VALIDATION:
  Validation is done in handlers and the domain packages, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - settle/types.go: The domain request the settlement DTO maps onto
*/
package api

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents a resident account in API responses.
type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateAccountRequest is the request to create an account.
type CreateAccountRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BalanceDTO is an account's derived balance.
type BalanceDTO struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

// =============================================================================
// TRANSACTIONS AND DEPOSITS
// =============================================================================

// UsageDTO is one deposit draw attached to a settlement transaction.
type UsageDTO struct {
	DepositID string `json:"deposit_id"`
	Amount    string `json:"amount"`
}

// TransactionDTO represents a ledger transaction in API responses.
type TransactionDTO struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	Type          string     `json:"type"`
	Amount        string     `json:"amount"`
	BalanceBefore string     `json:"balance_before"`
	BalanceAfter  string     `json:"balance_after"`
	Method        string     `json:"method,omitempty"`
	BankRef       string     `json:"bank_ref,omitempty"`
	Description   string     `json:"description,omitempty"`
	ReferenceType string     `json:"reference_type,omitempty"`
	ReferenceID   string     `json:"reference_id,omitempty"`
	Usages        []UsageDTO `json:"usages,omitempty"`
	CreatedAt     string     `json:"created_at"`
}

// DepositDTO is a deposit transaction together with its remaining value.
type DepositDTO struct {
	ID             string `json:"id"`
	OriginalAmount string `json:"original_amount"`
	Remaining      string `json:"remaining"`
	Method         string `json:"method,omitempty"`
	BankRef        string `json:"bank_ref,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// CreateDepositRequest records an incoming deposit on an account.
type CreateDepositRequest struct {
	Amount      string `json:"amount"`
	Method      string `json:"method,omitempty"`
	BankRef     string `json:"bank_ref,omitempty"`
	Description string `json:"description,omitempty"`
}

// EditDepositRequest corrects a deposit's own fields. Nil fields are left
// unchanged; amount edits are rejected once the deposit has been drawn on.
type EditDepositRequest struct {
	Amount      *string `json:"amount,omitempty"`
	Method      *string `json:"method,omitempty"`
	BankRef     *string `json:"bank_ref,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ReverseDepositRequest refunds a deposit's remaining value.
type ReverseDepositRequest struct {
	Reason string `json:"reason,omitempty"`
}

// FundingOptionsDTO lists what can fund a settlement for an account.
type FundingOptionsDTO struct {
	AccountID string       `json:"account_id"`
	Balance   string       `json:"balance"`
	Deposits  []DepositDTO `json:"deposits"`
}

// =============================================================================
// INVOICES
// =============================================================================

// ChargeDTO is one line item on an invoice.
type ChargeDTO struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Arrears     string `json:"arrears,omitempty"`
}

// InvoiceDTO represents an invoice with its computed balance as of a date.
type InvoiceDTO struct {
	ID              string      `json:"id"`
	Number          string      `json:"number"`
	PropertyID      string      `json:"property_id,omitempty"`
	Customer        string      `json:"customer,omitempty"`
	Charges         []ChargeDTO `json:"charges,omitempty"`
	Subtotal        string      `json:"subtotal"`
	TotalArrears    string      `json:"total_arrears"`
	GrandTotal      string      `json:"grand_total"`
	DueDate         string      `json:"due_date"`
	TotalPaid       string      `json:"total_paid"`
	Status          string      `json:"status"`
	EffectiveAmount string      `json:"effective_amount"`
	Balance         string      `json:"balance"`
	AsOf            string      `json:"as_of"`
	CreatedAt       string      `json:"created_at,omitempty"`
}

// CreateInvoiceRequest creates an invoice. The number is derived from the
// type and due date plus a caller-supplied sequence.
type CreateInvoiceRequest struct {
	ID         string      `json:"id,omitempty"`
	Type       string      `json:"type"`
	Sequence   int         `json:"sequence"`
	PropertyID string      `json:"property_id,omitempty"`
	Customer   string      `json:"customer,omitempty"`
	Charges    []ChargeDTO `json:"charges"`
	DueDate    string      `json:"due_date"`
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// SettlementInvoiceDTO names one invoice and the exact amount allocated to it.
type SettlementInvoiceDTO struct {
	InvoiceID string `json:"invoice_id"`
	Amount    string `json:"amount"`
}

// SettlementDepositUseDTO names one deposit and how much of it funds the batch.
type SettlementDepositUseDTO struct {
	DepositID string `json:"deposit_id"`
	Amount    string `json:"amount"`
}

// SubmitSettlementRequest is one settlement batch. Deposit-funded when
// deposit_uses is non-empty, balance-funded otherwise.
type SubmitSettlementRequest struct {
	AccountID     string                    `json:"account_id"`
	PaymentAmount string                    `json:"payment_amount,omitempty"`
	DepositUses   []SettlementDepositUseDTO `json:"deposit_uses,omitempty"`
	Invoices      []SettlementInvoiceDTO    `json:"invoices"`
	Method        string                    `json:"method,omitempty"`
	BankRef       string                    `json:"bank_ref,omitempty"`
	Description   string                    `json:"description,omitempty"`
	AsOf          string                    `json:"as_of,omitempty"`
}

// SettlementOutcomeDTO reports one invoice's result within a batch.
type SettlementOutcomeDTO struct {
	InvoiceID     string `json:"invoice_id"`
	Requested     string `json:"requested"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SettlementResultDTO is the per-invoice report of a batch.
type SettlementResultDTO struct {
	AllSettled   bool                   `json:"all_settled"`
	SettledCount int                    `json:"settled_count"`
	Outcomes     []SettlementOutcomeDTO `json:"outcomes"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconciliationDTO is one month's saved reconciliation state. The attachment
// payload is not echoed back; fetch it separately if needed.
type ReconciliationDTO struct {
	Month         string `json:"month"`
	Amount        string `json:"amount"`
	ComputedTotal string `json:"computed_total"`
	AttachmentID  string `json:"attachment_id,omitempty"`
	Filename      string `json:"filename,omitempty"`
	SavedAt       string `json:"saved_at,omitempty"`
}

// SaveReconciliationRequest submits the reconciled amount for a month with
// its supporting document, base64-encoded. SuspenseAmount covers bank
// movement held in suspense, not yet booked against any account; it is
// added to the ledger's deposit total before the match check.
type SaveReconciliationRequest struct {
	Amount         string `json:"amount"`
	SuspenseAmount string `json:"suspense_amount,omitempty"`
	Filename       string `json:"filename"`
	Attachment     string `json:"attachment"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// LoadScenarioResponse reports what a scenario created.
type LoadScenarioResponse struct {
	Scenario   string   `json:"scenario"`
	AccountIDs []string `json:"account_ids"`
	InvoiceIDs []string `json:"invoice_ids"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

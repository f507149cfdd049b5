/*
errors.go - Centralized error types for the ledger core

ERROR CATEGORIES:
  1. Validation errors - business rule violations, reported verbatim
  2. Insufficient funds - a cap was exceeded at write time
  3. Not found - unknown account/invoice/deposit, aborts before any write

All three are local, recoverable conditions. Persistence failures propagate
as plain wrapped errors and are the only infrastructure-level class.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the class of business-rule violations. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when a deposit's remaining or the
	// account balance cannot cover a requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned for unknown account, transaction or deposit ids.
	ErrNotFound = errors.New("not found")

	// ErrDepositInUse is returned when editing a deposit's amount after
	// usages have been recorded against it.
	ErrDepositInUse = errors.New("deposit already partially consumed")

	// ErrAccountInactive is returned when appending to a deactivated account.
	ErrAccountInactive = errors.New("account is deactivated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the violated rule. It is reported to the caller
// verbatim and never retried.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf builds a ValidationError for the given rule.
func Validationf(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError details a balance or deposit shortage.
type InsufficientFundsError struct {
	AccountID AccountID
	DepositID TransactionID // empty for balance-funded shortages
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	if e.DepositID != "" {
		return fmt.Sprintf("deposit %s: available %s, requested %s",
			e.DepositID, e.Available, e.Requested)
	}
	return fmt.Sprintf("account %s: balance %s, requested %s",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "account", "transaction", "deposit", "invoice"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDepositInUse) ||
		errors.Is(err, ErrAccountInactive)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

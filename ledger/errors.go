/*
errors.go - Centralized error types for the stock ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations map driver-level failures onto these so the HTTP
  layer can classify them without knowing the database.

ERROR CATEGORIES:
  1. Validation errors - Ledger entry invariants, bad input (client-fixable)
  2. Referential errors - Deleting something still referenced, duplicates
  3. Permission errors - Domain rule on deleting completed-order entries
  4. Transfer errors - Any failure inside the two-leg move

USAGE:
  if errors.Is(err, ledger.ErrInsufficientStock) {
      var stockErr *ledger.InsufficientStockError
      errors.As(err, &stockErr)
      ...
  }
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a candidate entity breaks a write rule.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when an expense exceeds remaining stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique attribute is already taken.
	ErrDuplicate = errors.New("duplicate value")

	// ErrReferenced is returned when deleting an entity that is still in use.
	ErrReferenced = errors.New("entity is referenced")

	// ErrDeleteForbidden is returned when a ledger entry may not be removed
	// by the acting user.
	ErrDeleteForbidden = errors.New("delete forbidden")

	// ErrTransferFailed is returned for any failed stock transfer.
	ErrTransferFailed = errors.New("transfer failed")
)

// =============================================================================
// VALIDATION RULES
// =============================================================================

// Rule names the write rule a ValidationError reports.
type Rule string

const (
	RuleWellFormed        Rule = "well_formed"
	RuleSingleSource      Rule = "single_source"
	RuleCorrectionNote    Rule = "correction_note"
	RuleDocumentRequired  Rule = "document_required"
	RulePositive          Rule = "positive"
	RuleSumMatches        Rule = "sum_matches"
	RuleStockSufficient   Rule = "stock_sufficient"
	RuleRequired          Rule = "required"
	RuleUnknownReference  Rule = "unknown_reference"
	RuleTooLong           Rule = "too_long"
	RuleResponsibleRole   Rule = "responsible_role"
	RuleDistinctWarehouse Rule = "distinct_warehouse"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies which field violated which rule.
type ValidationError struct {
	Field   string
	Rule    Rule
	Message string
	Err     error // optional cause, e.g. *InsufficientStockError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Rule)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

func invalid(field string, rule Rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	MaterialID  MaterialID
	WarehouseID WarehouseID
	Date        time.Time
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateError names the attribute whose uniqueness was violated.
type DuplicateError struct {
	Entity string
	Field  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with this %s already exists", e.Entity, e.Field)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// ReferencedError is returned when deletion is blocked by dependent rows.
type ReferencedError struct {
	Entity string
	ID     int64
	By     string
}

func (e *ReferencedError) Error() string {
	if e.By == "" {
		return fmt.Sprintf("%s %d is referenced and cannot be deleted", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %d is referenced by %s and cannot be deleted", e.Entity, e.ID, e.By)
}

func (e *ReferencedError) Unwrap() error {
	return ErrReferenced
}

// DeleteForbiddenError is the business-rule rejection for removing an entry
// that belongs to a completed order.
type DeleteForbiddenError struct {
	TurnoverID TurnoverID
	OrderID    OrderID
}

func (e *DeleteForbiddenError) Error() string {
	return fmt.Sprintf("turnover %d belongs to completed order %d; only entries of open orders may be deleted",
		e.TurnoverID, e.OrderID)
}

func (e *DeleteForbiddenError) Unwrap() error {
	return ErrDeleteForbidden
}

// TransferError wraps the cause of a failed transfer. Callers that only
// need the generic signal check errors.Is(err, ErrTransferFailed).
type TransferError struct {
	Leg string // "expense", "incoming" or "" when failing before the legs
	Err error
}

func (e *TransferError) Error() string {
	if e.Leg == "" {
		return fmt.Sprintf("transfer failed: %v", e.Err)
	}
	return fmt.Sprintf("transfer failed on %s leg: %v", e.Leg, e.Err)
}

func (e *TransferError) Unwrap() []error {
	return []error{ErrTransferFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDeleteForbidden) ||
		errors.Is(err, ErrTransferFailed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for uniqueness and protect-on-delete failures.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrReferenced)
}

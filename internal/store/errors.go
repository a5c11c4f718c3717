package store

import "fmt"

// Validation codes.
const (
	CodeEmptyItems        = "EmptyItems"
	CodeTooManyItems      = "TooManyItems"
	CodeMissingFields     = "MissingFields"
	CodeInvalidEmail      = "InvalidEmail"
	CodeNegativePrice     = "NegativePrice"
	CodeNegativeStock     = "NegativeStock"
	CodeTotalExceeded     = "TotalExceeded"
	CodeInsufficientStock = "InsufficientStock"
)

// Conflict codes.
const (
	ConflictImmutable      = "Immutable"
	ConflictDuplicateEmail = "DuplicateEmail"
)

// ValidationError rejects malformed or out-of-policy input. For
// InsufficientStock it carries the product and the observed shortfall.
type ValidationError struct {
	Code      string
	Message   string
	ProductID string
	Available int
	Requested int
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError signals an absent referenced entity.
type NotFoundError struct {
	Kind string // "product" | "purchase" | "user"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConflictError signals a mutation the current state forbids.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func errImmutable() *ConflictError {
	return &ConflictError{
		Code:    ConflictImmutable,
		Message: "purchases with status COMPLETED cannot be modified",
	}
}

func errInsufficientStock(productID string, available, requested int) *ValidationError {
	return &ValidationError{
		Code: CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
			productID, available, requested),
		ProductID: productID,
		Available: available,
		Requested: requested,
	}
}

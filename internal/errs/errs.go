// Package errs holds the error taxonomy shared by the register core.
// Every error here reports a Kind so transports can tell "fix your input"
// apart from "try again" and "talk to the other cashier".
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a core error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindRegisterInUse     Kind = "register_in_use"
	KindUnauthorized      Kind = "unauthorized"
	KindConflict          Kind = "conflict"
	KindLockTimeout       Kind = "lock_timeout"
	KindTransactionFailed Kind = "transaction_failed"
)

// Kinded is implemented by every error in this package.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain,
// or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// Retryable reports whether repeating the whole operation may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindLockTimeout, KindTransactionFailed:
		return true
	}
	return false
}

// ValidationError is malformed input rejected before any transaction opens.
type ValidationError struct {
	Field   string
	Message string
}

func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Kind() Kind { return KindValidation }

// NotFoundError means a referenced product, shift, sale or held order is missing.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Kind() Kind { return KindNotFound }

// InsufficientStockError names the cart line that could not be fulfilled.
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): requested %d, available %d",
		e.ProductName, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Kind() Kind { return KindInsufficientStock }

// RegisterInUseError is returned when another cashier holds the open shift.
type RegisterInUseError struct {
	ShiftID    uint
	HolderID   uint
	HolderName string
}

func (e *RegisterInUseError) Error() string {
	return fmt.Sprintf("register is in use by %s (user %d)", e.HolderName, e.HolderID)
}

func (e *RegisterInUseError) Kind() Kind { return KindRegisterInUse }

// UnauthorizedError is an operation attempted by someone other than the owner.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

func (e *UnauthorizedError) Kind() Kind { return KindUnauthorized }

// ConflictError is a uniqueness or reference clash the caller must resolve.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Kind() Kind { return KindConflict }

// LockTimeoutError means a row lock could not be acquired in time.
// Nothing was applied; the caller may retry.
type LockTimeoutError struct {
	Op  string
	Err error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out waiting for lock: %v", e.Op, e.Err)
}

func (e *LockTimeoutError) Unwrap() error { return e.Err }

func (e *LockTimeoutError) Kind() Kind { return KindLockTimeout }

// TransactionFailedError wraps an infrastructure failure; the transaction was rolled back.
type TransactionFailedError struct {
	Op  string
	Err error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s: transaction failed: %v", e.Op, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

func (e *TransactionFailedError) Kind() Kind { return KindTransactionFailed }

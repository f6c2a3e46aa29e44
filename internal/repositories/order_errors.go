package repositories

import "fmt"

// OrderErrorCode enumerates repository error causes for order transition operations.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorNotFound indicates the order document is missing.
	OrderErrorNotFound OrderErrorCode = "order_not_found"
	// OrderErrorStatusConflict indicates the stored status no longer matches what
	// the caller read before deciding on the transition.
	OrderErrorStatusConflict OrderErrorCode = "order_status_conflict"
	// OrderErrorLedgerExists indicates an income entry for the order already exists.
	OrderErrorLedgerExists OrderErrorCode = "order_ledger_exists"
)

// OrderError wraps order-transition failures with machine readable codes.
type OrderError struct {
	Op      string
	Code    OrderErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error maps to a missing document.
func (e *OrderError) IsNotFound() bool {
	return e != nil && e.Code == OrderErrorNotFound
}

// IsConflict reports whether the error maps to a concurrent modification.
func (e *OrderError) IsConflict() bool {
	return e != nil && (e.Code == OrderErrorStatusConflict || e.Code == OrderErrorLedgerExists)
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *OrderError) IsUnavailable() bool {
	return false
}

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

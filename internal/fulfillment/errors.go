package fulfillment

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes fulfillment errors.
type ErrorCode string

const (
	// ErrCodeInvalidOrder indicates a cart that cannot become an order.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"

	// ErrCodeUnknownItem indicates a cart line with no catalog entry or slot.
	ErrCodeUnknownItem ErrorCode = "UNKNOWN_ITEM"

	// ErrCodePlacementFailed indicates the store did not confirm the order.
	ErrCodePlacementFailed ErrorCode = "PLACEMENT_FAILED"

	// ErrCodeSignalNotAccepted indicates a completion signal the current
	// stage policy or stage state does not allow.
	ErrCodeSignalNotAccepted ErrorCode = "SIGNAL_NOT_ACCEPTED"

	// ErrCodeNotFound indicates a missing order.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInconsistentState indicates stored state that violates the
	// pipeline invariants.
	ErrCodeInconsistentState ErrorCode = "INCONSISTENT_STATE"
)

// Error is a fulfillment failure with a stable code for callers and exit
// status mapping.
type Error struct {
	Code    ErrorCode
	Message string
	OrderID string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.OrderID != "" {
		msg += fmt.Sprintf(" (order=%s)", e.OrderID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, orderID string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		OrderID: orderID,
		Err:     cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsInvalidOrder reports whether err is an INVALID_ORDER error.
func IsInvalidOrder(err error) bool { return CodeOf(err) == ErrCodeInvalidOrder }

// IsUnknownItem reports whether err is an UNKNOWN_ITEM error.
func IsUnknownItem(err error) bool { return CodeOf(err) == ErrCodeUnknownItem }

// IsPlacementFailed reports whether err is a PLACEMENT_FAILED error.
func IsPlacementFailed(err error) bool { return CodeOf(err) == ErrCodePlacementFailed }

// IsSignalNotAccepted reports whether err is a SIGNAL_NOT_ACCEPTED error.
func IsSignalNotAccepted(err error) bool { return CodeOf(err) == ErrCodeSignalNotAccepted }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsInconsistentState reports whether err is an INCONSISTENT_STATE error.
func IsInconsistentState(err error) bool { return CodeOf(err) == ErrCodeInconsistentState }

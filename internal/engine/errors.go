package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/x3drouter/internal/field"
	"github.com/roach88/x3drouter/internal/script"
)

// RuntimeError represents an error detected during frame evaluation.
//
// Runtime errors include:
//   - Route cycle overflow: the per-frame delivery breaker tripped
//   - Invalid field: an external write named an unknown field or a field
//     in the wrong role
//   - Invalid field value: an external write failed type or range checks
//   - Script failure: a Script node handler raised or timed out
//
// None of these abort a frame. They are logged and, when a handler is
// installed with WithErrorHandler, reported to it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the label of the node involved, if any.
	Node string

	// Frame is the frame number in which the error occurred.
	Frame uint64

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying error, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRouteCycleOverflow indicates the delivery breaker tripped.
	ErrCodeRouteCycleOverflow RuntimeErrorCode = "ROUTE_CYCLE_OVERFLOW"

	// ErrCodeInvalidField indicates an unknown field or a role violation.
	ErrCodeInvalidField RuntimeErrorCode = "INVALID_FIELD"

	// ErrCodeInvalidFieldValue indicates a type or constraint violation.
	ErrCodeInvalidFieldValue RuntimeErrorCode = "INVALID_FIELD_VALUE"

	// ErrCodeScriptFailed indicates a Script node handler failed.
	ErrCodeScriptFailed RuntimeErrorCode = "SCRIPT_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s, frame=%d)", e.Code, e.Message, e.Node, e.Frame)
	}
	return fmt.Sprintf("%s: %s (frame=%d)", e.Code, e.Message, e.Frame)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsOverflowError returns true if the error is a route cycle overflow.
// Matches both RuntimeError with ErrCodeRouteCycleOverflow and
// RouteCycleOverflowError. Uses errors.As to handle wrapped errors.
func IsOverflowError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeRouteCycleOverflow {
		return true
	}
	var oe *RouteCycleOverflowError
	return errors.As(err, &oe)
}

// IsScriptError returns true if the error is a script failure.
func IsScriptError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeScriptFailed
	}
	return false
}

// NewOverflowError wraps a tripped breaker as a RuntimeError.
func NewOverflowError(oe *RouteCycleOverflowError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRouteCycleOverflow,
		Message: "route cycle exceeded the per-frame delivery limit",
		Node:    oe.LastSource,
		Frame:   oe.Frame,
		Details: map[string]string{
			"deliveries": fmt.Sprintf("%d", oe.Deliveries),
			"limit":      fmt.Sprintf("%d", oe.Limit),
			"dropped":    fmt.Sprintf("%d", oe.Dropped),
		},
		Err: oe,
	}
}

// NewFieldError classifies an error from an external field write. Errors
// that are neither field nor value errors are returned unchanged.
func NewFieldError(frame uint64, nodeLabel string, err error) error {
	var code RuntimeErrorCode
	switch {
	case field.IsInvalidField(err):
		code = ErrCodeInvalidField
	case field.IsInvalidFieldValue(err):
		code = ErrCodeInvalidFieldValue
	default:
		return err
	}
	return &RuntimeError{
		Code:    code,
		Message: err.Error(),
		Node:    nodeLabel,
		Frame:   frame,
		Err:     err,
	}
}

// NewScriptError wraps a Script node failure.
func NewScriptError(frame uint64, se *script.Error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeScriptFailed,
		Message: fmt.Sprintf("%s failed: %v", se.Func, se.Err),
		Node:    se.Node,
		Frame:   frame,
		Details: map[string]string{"func": se.Func},
		Err:     se,
	}
}

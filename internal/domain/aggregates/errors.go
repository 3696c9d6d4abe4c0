package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a failure for retry and reporting decisions.
type ErrorCode string

const (
	CodeValidation             ErrorCode = "validation"
	CodeNotFound               ErrorCode = "not_found"
	CodeConflict               ErrorCode = "conflict"
	CodeUnsupportedAggregation ErrorCode = "unsupported_aggregation"
	CodeStorage                ErrorCode = "storage"
	CodeRetryable              ErrorCode = "retryable"
	CodeInternal               ErrorCode = "internal"
)

// Error is returned across package boundaries. Op names the failing
// operation as "<component>.<action>".
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	head := strings.TrimSpace(e.Op)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		if head != "" {
			head += ": "
		}
		head += msg
	}
	if head == "" {
		return string(e.Code)
	}
	return head + " (" + string(e.Code) + ")"
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Errorf is NewError with a formatted message and no cause.
func Errorf(code ErrorCode, op, format string, args ...interface{}) error {
	return NewError(code, op, fmt.Sprintf(format, args...), nil)
}

// Wrap annotates err with code. Errors that already carry a code are returned as is.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the error code when available.
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}

// Retryable reports whether the caller may retry the operation unchanged.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeRetryable, CodeConflict:
		return true
	default:
		return false
	}
}

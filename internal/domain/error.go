package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
// The HTTP layer maps these to status codes; the CLI prints them as-is.
const (
	EINTERNAL = "internal"  // store, file system or publish failure
	EINVALID  = "invalid"   // bad operator input (unknown format, missing catalog id)
	ENOTFOUND = "not_found" // element, file, price, site or profile missing
	ECONFLICT = "conflict"  // export already running for the same profile
)

// Error is an application error with a code, an operator-safe message and
// the operation it came from.
type Error struct {
	// Code is a machine-readable error code (EINVALID, ENOTFOUND, ...).
	Code string

	// Message is a human-readable message safe to show to operators.
	Message string

	// Op names the failing operation, e.g. "feed.export".
	Op string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap supports errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the code from err.
// Returns EINTERNAL for errors that are not *Error and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorMessage extracts an operator-facing message from err.
// Internal errors are reduced to a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}

	return "An internal error occurred. Check the exporter logs."
}

// ErrorOp extracts the failing operation from err, for logging.
func ErrorOp(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// Errorf creates a new error with a formatted message.
// Example: domain.Errorf(domain.EINVALID, "feed.export", "unknown format %q", f)
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound creates a not found error for a resource.
// Example: domain.NotFound("catalog.get_element", "element", "42")
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Invalid creates an input error.
func Invalid(op, message string) error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Internal wraps an underlying failure. Returns nil if err is nil.
// Example: domain.Internal(err, "catalog.list_elements", "failed to query elements")
func Internal(err error, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

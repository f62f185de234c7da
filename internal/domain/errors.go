package domain

import (
	"errors"
	"fmt"
)

// Machine-readable error codes carried by *Error. The handler layer maps
// these to HTTP statuses.
const (
	EINVALID   = "invalid"
	ENOTFOUND  = "not_found"
	ECONFLICT  = "conflict"
	ENOTREADY  = "not_ready"
	ERATELIMIT = "rate_limit"
	EINTERNAL  = "internal"
)

// genericMessage hides internal failure detail from API clients.
const genericMessage = "An internal error occurred. Please try again later."

// Error is the application error type. Code drives client-facing behavior,
// Op records where the failure happened for logs, Err keeps the cause for
// errors.Is/As.
type Error struct {
	Code    string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the code from err. Unrecognized errors are treated as
// internal so they never leak a misleading status.
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

// ErrorMessage extracts the client-safe message from err. Internal errors
// and unrecognized errors both collapse to the generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}
	return genericMessage
}

// ErrorOp extracts the failing operation from err, for logging only.
func ErrorOp(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// NotFound reports a missing resource by id.
func NotFound(op, resource, id string) *Error {
	return Errorf(ENOTFOUND, op, "%s with ID %q not found", resource, id)
}

// Invalid reports rejected input.
func Invalid(op, message string) *Error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

// Conflict reports a state conflict, such as a duplicate.
func Conflict(op, message string) *Error {
	return &Error{Code: ECONFLICT, Op: op, Message: message}
}

// NotReady reports a resource that exists but cannot be served yet.
func NotReady(op, message string) *Error {
	return &Error{Code: ENOTREADY, Op: op, Message: message}
}

// Internal wraps an unexpected failure. The cause stays available through
// Unwrap but is never shown to clients.
func Internal(err error, op, message string) *Error {
	return &Error{Code: EINTERNAL, Op: op, Message: message, Err: err}
}

// RateLimit reports that the caller exceeded the request limit.
func RateLimit(op string) *Error {
	return &Error{Code: ERATELIMIT, Op: op, Message: "Too many requests. Please try again later."}
}

// ValidationError carries per-field messages for a rejected submission.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError starts a ValidationError with one field message.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{Op: op, Fields: map[string]string{field: message}}
}

// AddFieldError appends a field message, starting a new ValidationError
// when err is not one. A typed-nil *ValidationError counts as "not one",
// so callers can accumulate into a nil-initialized variable.
func AddFieldError(err error, field, message string) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) && ve != nil {
		if ve.Fields == nil {
			ve.Fields = make(map[string]string)
		}
		ve.Fields[field] = message
		return ve
	}
	return NewValidationError("", field, message)
}

// Package apperr defines the client-facing error taxonomy. Every layer
// returns an *Error tagged with a Code; handlers switch on the code to
// pick the HTTP status instead of inspecting concrete error types.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeAuthRequired     Code = "authentication_required"
	CodeValidation       Code = "validation_error"
	CodeQuotaExceeded    Code = "quota_exceeded"
	CodeGenerationFailed Code = "generation_failed"
	CodeNotFound         Code = "not_found"
	CodeInternal         Code = "internal"
)

type Error struct {
	Code      Code
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Internal marks an infrastructure failure. These are the only errors a
// caller may retry.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Retryable: true, cause: cause}
}

// CodeOf extracts the taxonomy code from any error, defaulting unknown
// errors to internal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// AsError normalizes any error into an *Error so handlers always have a
// code and retryable bit to render. Internal details of unexpected
// errors are not exposed in the message.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("unexpected error", err)
}

package restq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	// CodeMalformedParameters indicates a parameter payload whose shape does
	// not fit its placement, or a body attempted on a bodyless verb.
	CodeMalformedParameters ErrorCode = "malformed_parameters"

	// CodeInvalidSession indicates a transport handle could not be created.
	CodeInvalidSession ErrorCode = "invalid_session"

	// CodeDecodeFailure indicates a response body that could not be decoded.
	CodeDecodeFailure ErrorCode = "decode_failure"

	// CodeNodeNotFound indicates a decoded response that is neither an array
	// nor an object after root extraction. It is a diagnostic classification,
	// not a call failure.
	CodeNodeNotFound ErrorCode = "node_not_found"

	// CodeHTTPStatus indicates a response with a non-success HTTP status.
	CodeHTTPStatus ErrorCode = "http_status"

	// CodeCanceled indicates a call canceled before completion.
	CodeCanceled ErrorCode = "canceled"

	CodeInternal ErrorCode = "internal"
)

// Error is the standard error envelope for call outcomes.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// Status carries the HTTP status for CodeHTTPStatus errors.
	Status int `json:"status,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new call error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new call error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// StatusError creates an error for a non-success HTTP response status.
func StatusError(status int) *Error {
	return &Error{
		Code:    CodeHTTPStatus,
		Message: fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Status:  status,
	}
}

// CodeOf extracts the ErrorCode from err, mapping context cancellation to
// CodeCanceled and anything unrecognized to CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.Code
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}

	return CodeInternal
}

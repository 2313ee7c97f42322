package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeTransport     ErrorType = "transport"
	ErrorTypeShape         ErrorType = "shape"
	ErrorTypeDuplicatePage ErrorType = "duplicate_page"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeParsing       ErrorType = "parsing"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error represents a harvester error with type information.
// Code carries the HTTP status when one was involved, 0 otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthenticationError reports that no credential could be obtained or
// that the remote service rejected the one in use.
func NewAuthenticationError(message string, code int) *Error {
	return &Error{Type: ErrorTypeAuth, Message: message, Code: code}
}

// NewTransportError reports a network failure or a non-200 response.
func NewTransportError(message string, code int, err error) *Error {
	return &Error{Type: ErrorTypeTransport, Message: message, Code: code, Err: err}
}

// NewShapeError reports a response whose item list could not be located.
func NewShapeError(message string) *Error {
	return &Error{Type: ErrorTypeShape, Message: message}
}

// NewDuplicatePageError reports a page that repeats ids already harvested.
func NewDuplicatePageError(message string) *Error {
	return &Error{Type: ErrorTypeDuplicatePage, Message: message}
}

// FromStatus maps an HTTP status code to a typed error.
func FromStatus(code int, message string) *Error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &Error{Type: ErrorTypeAuth, Message: message, Code: code}
	case code == http.StatusNotFound:
		return &Error{Type: ErrorTypeNotFound, Message: message, Code: code}
	case code == http.StatusTooManyRequests:
		return &Error{Type: ErrorTypeRateLimit, Message: message, Code: code}
	case code >= 500:
		return &Error{Type: ErrorTypeServerError, Message: message, Code: code}
	default:
		return &Error{Type: ErrorTypeTransport, Message: message, Code: code}
	}
}

// IsType reports whether err (or anything it wraps) is an *Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// TypeOf returns the type of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsTransportFailure reports whether err stops a fetch without being an
// authentication problem: network errors and every non-200 status.
func IsTransportFailure(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeTransport, ErrorTypeRateLimit, ErrorTypeNotFound, ErrorTypeServerError:
		return true
	}
	return false
}

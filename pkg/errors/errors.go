package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures by how the caller has to react to them
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeMetadata    ErrorType = "metadata"
	ErrorTypeTransfer    ErrorType = "transfer"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error carries a classification, an optional HTTP status code and the underlying cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(errorType ErrorType, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Type: errorType, Message: message, Err: err}
}

// WithCode returns a copy of e carrying the given HTTP status code
func (e *Error) WithCode(code int) *Error {
	c := *e
	c.Code = code
	return &c
}

// TypeOf returns the classification of the first *Error in err's chain,
// or ErrorTypeUnknown when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err's chain contains an *Error of the given type
func Is(err error, errorType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsFatal reports whether err must abort the whole run instead of a single item
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeAuth, ErrorTypeNotFound:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTransfer:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404, 416:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatus maps an HTTP status code to a classified error
func FromStatus(statusCode int, message string) *Error {
	var t ErrorType
	switch {
	case statusCode == 401 || statusCode == 403:
		t = ErrorTypeAuth
	case statusCode == 404:
		t = ErrorTypeNotFound
	case statusCode == 429:
		t = ErrorTypeRateLimit
	case statusCode >= 500:
		t = ErrorTypeServerError
	default:
		t = ErrorTypeUnknown
	}
	return &Error{Type: t, Message: message, Code: statusCode}
}

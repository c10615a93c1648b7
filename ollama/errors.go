package ollama

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a failed request.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection_error"
	KindTimeout    ErrorKind = "timeout_error"
	KindAPI        ErrorKind = "api_error"
	KindValidation ErrorKind = "validation_error"
	KindInternal   ErrorKind = "internal_error"
)

// APIErrorDetail is the error body Ollama returns with non-2xx responses.
type APIErrorDetail struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// Error is returned by every Client and Aggregator operation.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int             // set for KindAPI
	Detail     *APIErrorDetail // parsed API error body, if any
	Retryable  bool
	Err        error // underlying transport or decode error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != nil && e.Detail.Error != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail.Error)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectionError reports an unreachable backend.
func NewConnectionError(host string, err error) *Error {
	return &Error{
		Kind:    KindConnection,
		Message: fmt.Sprintf("cannot connect to Ollama. Is it running? Check: %s", host),
		Err:     err,
	}
}

// NewTimeoutError reports a request that kept timing out.
func NewTimeoutError(message string, err error) *Error {
	return &Error{
		Kind:      KindTimeout,
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

// NewAPIError reports a backend response with status >= 400.
func NewAPIError(statusCode int, detail *APIErrorDetail) *Error {
	return &Error{
		Kind:       KindAPI,
		Message:    fmt.Sprintf("API error %d", statusCode),
		StatusCode: statusCode,
		Detail:     detail,
	}
}

// NewValidationError reports malformed input or a response that does not match
// the expected shape.
func NewValidationError(message string, err error) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Err:     err,
	}
}

// NewInternalError reports a protocol violation or an unclassified failure.
func NewInternalError(message string, err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the kind of err. Errors that are not *Error are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	return err != nil && KindOf(err) == KindConnection
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	return err != nil && KindOf(err) == KindTimeout
}

// IsAPIError checks if an error is an API error.
func IsAPIError(err error) bool {
	return err != nil && KindOf(err) == KindAPI
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsInternalError checks if an error is an internal error.
func IsInternalError(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}

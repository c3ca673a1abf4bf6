package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the library.
type ErrorCode string

// Validation and resolution error codes
const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrInvalidModelID       ErrorCode = "INVALID_MODEL_ID"
	ErrNoCandidates         ErrorCode = "NO_CANDIDATES"
	ErrUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"
)

// Provider error codes
const (
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
)

// Orchestration error codes
const (
	ErrFallbackExhausted ErrorCode = "FALLBACK_EXHAUSTED"
	ErrCanceled          ErrorCode = "CANCELED"
)

// Stage identifies which step of a completion produced an error.
type Stage string

const (
	StageValidation Stage = "validation"
	StageResolution Stage = "resolution"
	StageProvider   Stage = "provider"
	StageExhausted  Stage = "exhausted"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Stage      Stage     `json:"stage,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStage records the stage that failed.
func (e *Error) WithStage(stage Stage) *Error {
	e.Stage = stage
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewInvalidRequestError is a shorthand for validation failures.
func NewInvalidRequestError(format string, args ...any) *Error {
	return Errorf(ErrInvalidRequest, format, args...).WithStage(StageValidation)
}

// NewRateLimitError is a shorthand for a retryable rate limit error.
func NewRateLimitError(provider, message string) *Error {
	return NewError(ErrRateLimited, message).WithProvider(provider).WithRetryable(true).WithHTTPStatus(429)
}

// NewTimeoutError is a shorthand for a retryable upstream timeout.
func NewTimeoutError(provider, message string) *Error {
	return NewError(ErrUpstreamTimeout, message).WithProvider(provider).WithRetryable(true).WithHTTPStatus(504)
}

// NewServerError is a shorthand for a retryable upstream 5xx error.
func NewServerError(provider, message string) *Error {
	return NewError(ErrUpstreamError, message).WithProvider(provider).WithRetryable(true).WithHTTPStatus(502)
}

// NewAuthError is a shorthand for a credential error. Not retryable.
func NewAuthError(provider, message string) *Error {
	return NewError(ErrUnauthorized, message).WithProvider(provider).WithHTTPStatus(401)
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var fe *FallbackError
	if errors.As(err, &fe) {
		return ErrFallbackExhausted
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// FromContext maps a context error to a CANCELED or UPSTREAM_TIMEOUT error.
// Returns nil if err is not a context error.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return NewError(ErrCanceled, "request canceled").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrUpstreamTimeout, "deadline exceeded").WithCause(err).WithRetryable(true)
	}
	return nil
}

// =============================================================================
// Fallback aggregate
// =============================================================================

// AttemptError is the failure of one candidate in a fallback chain.
type AttemptError struct {
	Index     int    `json:"index"`
	Candidate string `json:"candidate"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (a AttemptError) Error() string {
	return fmt.Sprintf("#%d %s: %v", a.Index, a.Candidate, a.Err)
}

// Unwrap returns the candidate error.
func (a AttemptError) Unwrap() error {
	return a.Err
}

// FallbackError is returned when every candidate failed with a retryable error.
// Attempts are kept in attempt order.
type FallbackError struct {
	Attempts []AttemptError
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] all %d candidates failed", ErrFallbackExhausted, len(e.Attempts))
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(a.Error())
	}
	return b.String()
}

// Unwrap exposes every candidate error to errors.Is and errors.As.
func (e *FallbackError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Code returns ErrFallbackExhausted.
func (e *FallbackError) Code() ErrorCode { return ErrFallbackExhausted }

// Stage returns StageExhausted.
func (e *FallbackError) Stage() Stage { return StageExhausted }

// Last returns the error of the final attempt.
func (e *FallbackError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

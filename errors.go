package pubsub

import (
	"errors"
	"fmt"
)

// Error represents a pubsub broker error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for broker operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeAuthentication indicates the caller could not be identified.
	ErrCodeAuthentication = "AUTHENTICATION_ERROR"

	// ErrCodeAuthorization indicates the caller is identified but not
	// permitted to perform the operation on the topic.
	ErrCodeAuthorization = "AUTHORIZATION_ERROR"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConflict indicates a non-retryable uniqueness conflict,
	// such as a duplicate message ID in the topic log.
	ErrCodeConflict = "CONFLICT_ERROR"

	// ErrCodeTransientStore indicates store contention (deadlock, lock
	// timeout, fan-out uniqueness race) that is safe to retry.
	ErrCodeTransientStore = "TRANSIENT_STORE_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeBackend indicates the backend queue broker failed.
	ErrCodeBackend = "BACKEND_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal = "INTERNAL_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration is returned when component configuration is invalid.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var pubsubErr *Error
	if errors.As(err, &pubsubErr) {
		return pubsubErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// IsTransientStore reports whether err is retryable store contention.
func IsTransientStore(err error) bool {
	return hasCode(err, ErrCodeTransientStore)
}

// IsConflict reports whether err is a non-retryable uniqueness conflict.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

func hasCode(err error, code string) bool {
	var pubsubErr *Error
	if errors.As(err, &pubsubErr) {
		return pubsubErr.Code == code
	}
	return false
}

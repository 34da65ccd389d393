// Package errors provides standardized error types for the domain layer.
// Errors are grouped into three categories: configuration errors that are
// fatal at startup, provider errors from the custodial wallet API, and
// store errors from the settlement database.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrConfiguration indicates a missing or invalid configuration value
	ErrConfiguration = errors.New("configuration error")

	// ErrProvider indicates a failure talking to the wallet provider
	ErrProvider = errors.New("provider error")

	// ErrStore indicates a failure against the settlement store
	ErrStore = errors.New("store error")

	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// WithRetryable marks the error as retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// IsRetryable returns true if the error is retryable
func (e *DomainError) IsRetryable() bool {
	return e.Retryable
}

// ConfigurationError creates a fatal configuration error
func ConfigurationError(message string) *DomainError {
	return &DomainError{
		Err:     ErrConfiguration,
		Code:    "CONFIGURATION_ERROR",
		Message: message,
	}
}

// ProviderError wraps a wallet provider failure for the given operation
func ProviderError(operation string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrProvider,
		Code:      "PROVIDER_ERROR",
		Message:   fmt.Sprintf("%s failed", operation),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// StoreError wraps a settlement store failure for the given operation
func StoreError(operation string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrStore,
		Code:    "STORE_ERROR",
		Message: fmt.Sprintf("%s failed", operation),
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationError creates a validation error
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// Error helpers for common patterns

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsProvider checks if an error is a provider error
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsStore checks if an error is a store error
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetErrorDetails extracts details from a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

package tls

import (
	"errors"
	"fmt"
)

// Common sentinel errors for TLS operations.
var (
	// ErrCipherSuiteInvalid indicates that a cipher suite name is unknown.
	ErrCipherSuiteInvalid = errors.New("invalid cipher suite")

	// ErrUnknownProtocol indicates that a protocol name cannot be resolved.
	ErrUnknownProtocol = errors.New("unknown TLS protocol")

	// ErrConfigInvalid indicates that a TLS configuration is invalid.
	ErrConfigInvalid = errors.New("invalid TLS configuration")
)

// ConfigurationError represents a TLS configuration error.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		if e.Cause != nil {
			return fmt.Sprintf("TLS config error at %s: %s: %v", e.Field, e.Message, e.Cause)
		}
		return fmt.Sprintf("TLS config error at %s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("TLS config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("TLS config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if errors.Is(target, ErrConfigInvalid) {
		return true
	}
	_, ok := target.(*ConfigurationError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with a cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

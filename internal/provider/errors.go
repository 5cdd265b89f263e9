package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider list operations.
var (
	// ErrDuplicateProvider indicates that a provider with the same name is already installed.
	ErrDuplicateProvider = errors.New("provider already installed")

	// ErrProviderNotFound indicates that no installed provider has the given name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNoConstructor indicates that no constructor is registered for a name.
	ErrNoConstructor = errors.New("no provider constructor registered")

	// ErrNoTLS indicates that a provider offers no TLS contexts.
	ErrNoTLS = errors.New("provider offers no TLS contexts")
)

// FatalReorderError is returned when replacing the provider list fails part
// way through. The list may be inconsistent afterwards, so callers must not
// continue as if compliance mode were in effect.
type FatalReorderError struct {
	// Stage is the step that failed: instantiate, remove or insert.
	Stage string

	// Provider is the provider being handled when the failure happened.
	Provider string

	// Installed lists the provider names present after the failure.
	Installed []string

	Cause error
}

// Error implements the error interface.
func (e *FatalReorderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("provider reorder failed at %s of %s: %v", e.Stage, e.Provider, e.Cause)
	}
	return fmt.Sprintf("provider reorder failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FatalReorderError) Unwrap() error {
	return e.Cause
}

// IsFatalReorder reports whether err is or wraps a FatalReorderError.
func IsFatalReorder(err error) bool {
	var target *FatalReorderError
	return errors.As(err, &target)
}

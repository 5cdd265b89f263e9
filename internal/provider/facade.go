package provider

import (
	"time"

	"github.com/vyrodovalexey/avatls/internal/stack"
)

// ValidationStatus is the result of probing a provider.
type ValidationStatus int

// Validation statuses.
const (
	// ValidationSkipped means the facade wraps the hardcoded fallback, which is never probed.
	ValidationSkipped ValidationStatus = iota

	// ValidationPassed means the provider produced a working context.
	ValidationPassed

	// ValidationFailed means the probe returned an error or panicked.
	ValidationFailed

	// ValidationTimedOut means the probe did not finish in time.
	ValidationTimedOut
)

// String returns the string representation of the validation status.
func (s ValidationStatus) String() string {
	switch s {
	case ValidationSkipped:
		return "skipped"
	case ValidationPassed:
		return "passed"
	case ValidationFailed:
		return "failed"
	case ValidationTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ValidationOutcome records how a provider validation probe went. It is a
// value, never an error: failed validation still yields a usable facade.
type ValidationOutcome struct {
	Status   ValidationStatus
	Err      error
	Duration time.Duration
}

// OK reports whether the provider passed validation.
func (o ValidationOutcome) OK() bool {
	return o.Status == ValidationPassed
}

// Facade is the cached, immutable result of a provider resolution.
type Facade struct {
	provider  Provider
	requested string
	fallback  bool
	outcome   ValidationOutcome
}

func newFacade(p Provider, requested string, fallback bool, outcome ValidationOutcome) *Facade {
	return &Facade{
		provider:  p,
		requested: requested,
		fallback:  fallback,
		outcome:   outcome,
	}
}

// Name returns the canonical name of the wrapped provider.
func (f *Facade) Name() string {
	return f.provider.Name()
}

// Requested returns the name the first resolution asked for; empty for the default.
func (f *Facade) Requested() string {
	return f.requested
}

// Provider returns the wrapped provider.
func (f *Facade) Provider() Provider {
	return f.provider
}

// Fallback reports whether the facade wraps the hardcoded fallback provider.
func (f *Facade) Fallback() bool {
	return f.fallback
}

// Outcome returns the validation outcome recorded at resolution time.
func (f *Facade) Outcome() ValidationOutcome {
	return f.outcome
}

// NewContext returns a TLS context from the wrapped provider.
func (f *Facade) NewContext(protocol string) (stack.Context, error) {
	return f.provider.NewContext(protocol)
}

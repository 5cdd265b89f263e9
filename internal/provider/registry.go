package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/avatls/internal/observability"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// DefaultValidationTimeout bounds a single provider validation probe.
const DefaultValidationTimeout = 5 * time.Second

// defaultKnownNames are the providers a default resolution looks for, in priority order.
var defaultKnownNames = []string{NameGoTLS, NameGoFIPS}

// Registry owns the process provider list and the facade cache. All list
// mutation goes through Register and ReorderTo.
type Registry struct {
	mu   sync.Mutex
	list List

	// cache is keyed by folded name; keys keeps insertion order.
	cache map[string]*Facade
	keys  []string
	def   *Facade

	knownNames        []string
	fallbackName      string
	fallback          func() Provider
	constructor       func(name string) (Constructor, bool)
	validationTimeout time.Duration

	logger  observability.Logger
	metrics avatls.MetricsRecorder
}

// Option is a functional option for configuring the Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry.
func WithLogger(logger observability.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the registry.
func WithMetrics(metrics avatls.MetricsRecorder) Option {
	return func(r *Registry) {
		r.metrics = metrics
	}
}

// WithList sets the provider list the registry manages.
func WithList(list List) Option {
	return func(r *Registry) {
		r.list = list
	}
}

// WithValidationTimeout bounds each validation probe.
func WithValidationTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		r.validationTimeout = timeout
	}
}

// WithKnownNames sets the names a default resolution probes for, in priority order.
func WithKnownNames(names ...string) Option {
	return func(r *Registry) {
		r.knownNames = slices.Clone(names)
	}
}

// WithConstructors replaces the process constructor table for this registry.
func WithConstructors(ctors map[string]Constructor) Option {
	table := make(map[string]Constructor, len(ctors))
	for name, ctor := range ctors {
		table[foldName(name)] = ctor
	}
	return func(r *Registry) {
		r.constructor = func(name string) (Constructor, bool) {
			ctor, ok := table[foldName(name)]
			return ctor, ok
		}
	}
}

// NewRegistry creates a registry. Without WithList it manages a new empty list.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		cache:             make(map[string]*Facade),
		knownNames:        slices.Clone(defaultKnownNames),
		fallbackName:      NameGoTLS,
		fallback:          NewGoTLS,
		constructor:       lookupConstructor,
		validationTimeout: DefaultValidationTimeout,
		logger:            observability.NopLogger(),
		metrics:           avatls.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.list == nil {
		r.list = NewList()
	}
	return r
}

// List returns the provider list managed by the registry.
func (r *Registry) List() List {
	return r.list
}

// Resolve returns the facade for name, resolving and validating it on first
// use. An empty name selects the remembered default, probing the provider
// list for a known provider the first time. Resolve never fails: every
// failure degrades to a usable facade.
func (r *Registry) Resolve(ctx context.Context, name string) *Facade {
	ctx, span := observability.StartSpan(ctx, "provider.Resolve",
		attribute.String("provider.requested", name),
	)
	defer observability.EndSpan(span, nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	if f := r.cachedLocked(name); f != nil {
		r.metrics.RecordResolution(avatls.ResolutionCached)
		span.SetAttributes(attribute.String("provider.resolved", f.Name()))
		return f
	}

	candidate := name
	if candidate == "" {
		candidate = r.probeDefaultLocked()
	}
	r.ensureInstalledLocked(candidate)

	var f *Facade
	if p, _, ok := r.list.Lookup(candidate); ok {
		if existing, cached := r.cache[foldName(p.Name())]; cached && existing.Provider() == p {
			f = existing
		} else {
			f = newFacade(p, name, false, r.validate(ctx, p))
		}
		r.metrics.RecordResolution(avatls.ResolutionResolved)
	} else {
		r.logger.Warn("no installed provider matches, using hardcoded fallback",
			observability.String("candidate", candidate),
			observability.String("fallback", r.fallbackName),
		)
		f = newFacade(r.fallback(), name, true, ValidationOutcome{Status: ValidationSkipped})
		r.metrics.RecordResolution(avatls.ResolutionFallback)
	}

	if name != "" {
		r.storeLocked(name, f)
	}
	if !f.Fallback() {
		r.replaceFallbackLocked(f.Name(), f)
	}
	if name == "" {
		r.def = f
	}

	span.SetAttributes(
		attribute.String("provider.resolved", f.Name()),
		attribute.String("provider.validation", f.Outcome().Status.String()),
	)
	r.logger.Debug("provider resolved",
		observability.String("requested", name),
		observability.String("provider", f.Name()),
		observability.String("validation", f.Outcome().Status.String()),
		observability.Bool("fallback", f.Fallback()),
	)
	return f
}

func (r *Registry) cachedLocked(name string) *Facade {
	if name == "" {
		return r.def
	}
	return r.cache[foldName(name)]
}

func (r *Registry) storeLocked(name string, f *Facade) {
	key := foldName(name)
	if _, ok := r.cache[key]; ok {
		return
	}
	r.cache[key] = f
	r.keys = append(r.keys, key)
}

// replaceFallbackLocked caches f under its provider name, displacing a
// fallback facade cached there by an earlier failed resolution.
func (r *Registry) replaceFallbackLocked(name string, f *Facade) {
	key := foldName(name)
	if existing, ok := r.cache[key]; ok {
		if existing.Fallback() {
			r.cache[key] = f
		}
		return
	}
	r.cache[key] = f
	r.keys = append(r.keys, key)
}

// probeDefaultLocked picks the first installed provider whose name is known.
func (r *Registry) probeDefaultLocked() string {
	for _, p := range r.list.Providers() {
		key := foldName(p.Name())
		for _, known := range r.knownNames {
			if foldName(known) == key {
				return p.Name()
			}
		}
	}
	return r.fallbackName
}

// ensureInstalledLocked installs name from the constructor table when it is
// missing. Failures are logged; resolution continues with what is installed.
func (r *Registry) ensureInstalledLocked(name string) {
	if _, _, ok := r.list.Lookup(name); ok {
		return
	}

	ctor, ok := r.constructor(name)
	if !ok {
		r.logger.Debug("no constructor for provider", observability.String("provider", name))
		return
	}

	p, err := safeConstruct(ctor)
	if err != nil {
		r.logger.Warn("failed to instantiate provider",
			observability.String("provider", name),
			observability.Error(err),
		)
		return
	}

	pos, err := r.list.Insert(p, 0)
	if err != nil {
		r.logger.Warn("failed to install provider",
			observability.String("provider", name),
			observability.Error(err),
		)
		return
	}
	r.logger.Info("provider installed",
		observability.String("provider", p.Name()),
		observability.Int("position", pos),
	)
}

func safeConstruct(ctor Constructor) (p Provider, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("constructor panicked: %v", rec)
		}
	}()
	p, err = ctor()
	if err == nil && p == nil {
		err = ErrNoConstructor
	}
	return p, err
}

// validate probes p for a working TLS context. The probe runs in its own
// goroutine so a panic or a hang cannot escape; a hung probe is abandoned
// after the validation timeout.
func (r *Registry) validate(ctx context.Context, p Provider) ValidationOutcome {
	ctx, span := observability.StartSpan(ctx, "provider.Validate",
		attribute.String("provider.name", p.Name()),
	)

	ctx, cancel := context.WithTimeout(ctx, r.validationTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("validation panicked: %v", rec)
			}
		}()
		done <- probe(p)
	}()

	var outcome ValidationOutcome
	select {
	case err := <-done:
		outcome.Err = err
		outcome.Status = ValidationPassed
		if err != nil {
			outcome.Status = ValidationFailed
		}
	case <-ctx.Done():
		outcome.Status = ValidationTimedOut
		outcome.Err = ctx.Err()
	}
	outcome.Duration = time.Since(start)

	r.metrics.RecordValidation(p.Name(), outcome.Status.String())
	if outcome.Err != nil {
		r.logger.Warn("provider validation failed",
			observability.String("provider", p.Name()),
			observability.String("status", outcome.Status.String()),
			observability.Error(outcome.Err),
		)
	}
	observability.EndSpan(span, outcome.Err)
	return outcome
}

func probe(p Provider) error {
	c, err := p.NewContext("TLS")
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%s returned no context", p.Name())
	}
	if len(c.SupportedParameters().CipherSuites) == 0 {
		return fmt.Errorf("%s supports no cipher suites", p.Name())
	}
	return nil
}

// Register installs p at the lowest priority.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, err := r.list.Insert(p, 0)
	if err != nil {
		return err
	}
	r.logger.Info("provider registered",
		observability.String("provider", p.Name()),
		observability.Int("position", pos),
	)
	return nil
}

// ReorderTo replaces the whole provider list with order. Any failure is a
// *FatalReorderError.
func (r *Registry) ReorderTo(order []Provider) error {
	return r.reorder(func([]Provider) ([]Provider, error) {
		return order, nil
	})
}

// reorder computes the new order from a snapshot and installs it while
// holding the registry lock, so no Register can interleave.
func (r *Registry) reorder(plan func(snapshot []Provider) ([]Provider, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.list.Providers()
	order, err := plan(snapshot)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}

	for _, p := range snapshot {
		if err := r.list.Remove(p.Name()); err != nil {
			return r.fatalLocked("remove", p.Name(), err)
		}
	}
	for i, p := range order {
		if _, err := r.list.Insert(p, i+1); err != nil {
			return r.fatalLocked("insert", p.Name(), err)
		}
	}

	r.logger.Info("provider list reordered",
		observability.Strings("providers", providerNames(order)),
	)
	return nil
}

func (r *Registry) fatalLocked(stage, name string, cause error) *FatalReorderError {
	err := &FatalReorderError{
		Stage:     stage,
		Provider:  name,
		Installed: providerNames(r.list.Providers()),
		Cause:     cause,
	}
	r.logger.Error("provider reorder failed",
		observability.String("stage", stage),
		observability.String("provider", name),
		observability.Strings("installed", err.Installed),
		observability.Error(cause),
	)
	return err
}

// Default returns the remembered default facade, or nil before the first
// default resolution.
func (r *Registry) Default() *Facade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

// Facades returns the default facade, if resolved, followed by the cached
// facades in resolution order, one per distinct facade.
func (r *Registry) Facades() []*Facade {
	r.mu.Lock()
	defer r.mu.Unlock()

	facades := make([]*Facade, 0, len(r.keys)+1)
	if r.def != nil {
		facades = append(facades, r.def)
	}
	for _, key := range r.keys {
		f := r.cache[key]
		if !slices.Contains(facades, f) {
			facades = append(facades, f)
		}
	}
	return facades
}

// Providers describes the installed providers in priority order.
func (r *Registry) Providers() []Descriptor {
	providers := r.list.Providers()
	descriptors := make([]Descriptor, len(providers))
	for i, p := range providers {
		descriptors[i] = Descriptor{Name: p.Name(), Info: p.Info(), Position: i + 1}
	}
	return descriptors
}

var (
	globalMu sync.Mutex
	global   *Registry
)

// Init creates the process registry. It is meant to be called once at
// process start; a later call replaces the registry for new callers.
func Init(opts ...Option) *Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = NewRegistry(opts...)
	return global
}

// Global returns the process registry, creating a default one on first use.
func Global() *Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = NewRegistry()
	}
	return global
}

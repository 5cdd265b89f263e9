package provider

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/avatls/internal/observability"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Compliance promotes the compliance-mode provider to the top of the
// provider list, once per process.
//
// Only one anchor provider is supported: when installed it takes position 1
// and the compliance provider position 2.
type Compliance struct {
	registry *Registry

	mu          sync.Mutex
	initialized bool

	providerName string
	anchorName   string
	forceFlag    func()

	logger  observability.Logger
	metrics avatls.MetricsRecorder
}

// ComplianceOption is a functional option for configuring Compliance.
type ComplianceOption func(*Compliance)

// WithComplianceProvider sets the provider promoted to the top of the list.
func WithComplianceProvider(name string) ComplianceOption {
	return func(c *Compliance) {
		c.providerName = name
	}
}

// WithAnchor sets the provider pinned ahead of the compliance provider.
func WithAnchor(name string) ComplianceOption {
	return func(c *Compliance) {
		c.anchorName = name
	}
}

// WithComplianceLogger sets the logger.
func WithComplianceLogger(logger observability.Logger) ComplianceOption {
	return func(c *Compliance) {
		c.logger = logger
	}
}

// WithComplianceMetrics sets the metrics recorder.
func WithComplianceMetrics(metrics avatls.MetricsRecorder) ComplianceOption {
	return func(c *Compliance) {
		c.metrics = metrics
	}
}

// NewCompliance returns the reorderer for the providers managed by r.
func NewCompliance(r *Registry, opts ...ComplianceOption) *Compliance {
	c := &Compliance{
		registry:     r,
		providerName: NameGoFIPS,
		anchorName:   NameBase,
		forceFlag:    ForceFIPS,
		logger:       observability.NopLogger(),
		metrics:      avatls.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialized reports whether compliance mode has been put in place.
func (c *Compliance) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Enable switches the process to compliance mode. Only the first successful
// call reorders the provider list; later calls return nil without touching
// it. A *FatalReorderError means the list may be inconsistent.
func (c *Compliance) Enable(ctx context.Context) (err error) {
	_, span := observability.StartSpan(ctx, "provider.EnableCompliance",
		attribute.String("provider.compliance", c.providerName),
		attribute.String("provider.anchor", c.anchorName),
	)
	defer func() { observability.EndSpan(span, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	c.forceFlag()

	var changed, empty bool
	err = c.registry.reorder(func(snapshot []Provider) ([]Provider, error) {
		if len(snapshot) == 0 {
			empty = true
			return nil, nil
		}
		order, err := c.plan(snapshot)
		changed = order != nil
		return order, err
	})
	if err != nil {
		c.metrics.RecordComplianceReorder(false)
		return err
	}
	if empty {
		c.logger.Info("no providers installed, compliance reorder deferred")
		return nil
	}

	c.initialized = true
	c.metrics.RecordComplianceReorder(true)
	c.logger.Info("compliance mode enabled",
		observability.String("provider", c.providerName),
		observability.Bool("reordered", changed),
	)
	return nil
}

// plan returns the new provider order, or nil when the compliance provider
// already has priority.
func (c *Compliance) plan(snapshot []Provider) ([]Provider, error) {
	complianceKey := foldName(c.providerName)
	anchorKey := foldName(c.anchorName)

	var compliance, anchor Provider
	position := 0
	for i, p := range snapshot {
		switch foldName(p.Name()) {
		case complianceKey:
			compliance, position = p, i+1
		case anchorKey:
			anchor = p
		}
	}

	switch {
	case compliance == nil:
		p, err := c.instantiate()
		if err != nil {
			return nil, err
		}
		compliance = p
	case position == 1:
		return nil, nil
	}

	pinned := []Provider{compliance}
	if anchor != nil && anchorKey != complianceKey {
		pinned = []Provider{anchor, compliance}
	}
	return pinOrder(snapshot, pinned), nil
}

func (c *Compliance) instantiate() (Provider, error) {
	ctor, ok := c.registry.constructor(c.providerName)
	if !ok {
		return nil, &FatalReorderError{
			Stage:     "instantiate",
			Provider:  c.providerName,
			Installed: providerNames(c.registry.list.Providers()),
			Cause:     ErrNoConstructor,
		}
	}
	p, err := safeConstruct(ctor)
	if err != nil {
		return nil, &FatalReorderError{
			Stage:     "instantiate",
			Provider:  c.providerName,
			Installed: providerNames(c.registry.list.Providers()),
			Cause:     err,
		}
	}
	return p, nil
}

// pinOrder places pinned at the first positions and every other provider of
// snapshot after them, keeping their relative order.
func pinOrder(snapshot, pinned []Provider) []Provider {
	skip := make(map[string]struct{}, len(pinned))
	for _, p := range pinned {
		skip[foldName(p.Name())] = struct{}{}
	}

	order := make([]Provider, 0, len(snapshot)+len(pinned))
	order = append(order, pinned...)
	for _, p := range snapshot {
		if _, ok := skip[foldName(p.Name())]; ok {
			continue
		}
		order = append(order, p)
	}
	return order
}

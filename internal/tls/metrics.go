package tls

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by recorders and callers.
const (
	ResolutionCached   = "cached"
	ResolutionResolved = "resolved"
	ResolutionFallback = "fallback"

	LookupStore    = "store"
	LookupDefaults = "defaults"
	LookupEmpty    = "empty"
	LookupError    = "error"

	KindSocket       = "socket"
	KindServerSocket = "server_socket"
	KindEngine       = "engine"

	StoreHit     = "hit"
	StoreMiss    = "miss"
	StoreSuccess = "success"
	StoreError   = "error"
	StoreOpen    = "breaker_open"
)

// Metrics holds Prometheus metrics for provider selection and binding.
type Metrics struct {
	providerResolutions *prometheus.CounterVec
	providerValidations *prometheus.CounterVec
	complianceReorders  *prometheus.CounterVec
	configLookups       *prometheus.CounterVec
	boundObjects        *prometheus.CounterVec
	storeOperations     *prometheus.CounterVec

	registry *prometheus.Registry
	mu       sync.RWMutex
}

// MetricsOption is a functional option for configuring Metrics.
type MetricsOption func(*Metrics)

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(m *Metrics) {
		m.registry = registry
	}
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string, opts ...MetricsOption) *Metrics {
	if namespace == "" {
		namespace = "avatls"
	}

	m := &Metrics{}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.providerResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "resolutions_total",
			Help:      "Total number of provider resolutions by result",
		},
		[]string{"result"},
	)

	m.providerValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "validations_total",
			Help:      "Total number of provider validation probes by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	m.complianceReorders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "compliance_reorders_total",
			Help:      "Total number of compliance-mode provider reorders by result",
		},
		[]string{"result"},
	)

	m.configLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "lookups_total",
			Help:      "Total number of named configuration lookups by direction and source",
		},
		[]string{"direction", "source"},
	)

	m.boundObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "objects_total",
			Help:      "Total number of connection objects configured by kind",
		},
		[]string{"kind"},
	)

	m.storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of configuration store operations by store and result",
		},
		[]string{"store", "result"},
	)

	m.registry.MustRegister(
		m.providerResolutions,
		m.providerValidations,
		m.complianceReorders,
		m.configLookups,
		m.boundObjects,
		m.storeOperations,
	)

	return m
}

// RecordResolution records a provider resolution.
func (m *Metrics) RecordResolution(result string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.providerResolutions.WithLabelValues(result).Inc()
}

// RecordValidation records a provider validation probe.
func (m *Metrics) RecordValidation(provider, outcome string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.providerValidations.WithLabelValues(provider, outcome).Inc()
}

// RecordComplianceReorder records a compliance reorder attempt.
func (m *Metrics) RecordComplianceReorder(success bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := "success"
	if !success {
		result = "failure"
	}
	m.complianceReorders.WithLabelValues(result).Inc()
}

// RecordConfigLookup records where a named configuration came from.
func (m *Metrics) RecordConfigLookup(direction, source string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.configLookups.WithLabelValues(direction, source).Inc()
}

// RecordBoundObject records a connection object configured by a binding wrapper.
func (m *Metrics) RecordBoundObject(kind string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.boundObjects.WithLabelValues(kind).Inc()
}

// RecordStoreOperation records a configuration store read.
func (m *Metrics) RecordStoreOperation(store, result string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.storeOperations.WithLabelValues(store, result).Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NopMetrics is a no-op implementation of metrics for testing.
type NopMetrics struct{}

// NewNopMetrics creates a new NopMetrics instance.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// RecordResolution is a no-op.
func (m *NopMetrics) RecordResolution(_ string) {}

// RecordValidation is a no-op.
func (m *NopMetrics) RecordValidation(_, _ string) {}

// RecordComplianceReorder is a no-op.
func (m *NopMetrics) RecordComplianceReorder(_ bool) {}

// RecordConfigLookup is a no-op.
func (m *NopMetrics) RecordConfigLookup(_, _ string) {}

// RecordBoundObject is a no-op.
func (m *NopMetrics) RecordBoundObject(_ string) {}

// RecordStoreOperation is a no-op.
func (m *NopMetrics) RecordStoreOperation(_, _ string) {}

// MetricsRecorder defines the interface for recording TLS metrics.
type MetricsRecorder interface {
	RecordResolution(result string)
	RecordValidation(provider, outcome string)
	RecordComplianceReorder(success bool)
	RecordConfigLookup(direction, source string)
	RecordBoundObject(kind string)
	RecordStoreOperation(store, result string)
}

// Ensure implementations satisfy the interface.
var (
	_ MetricsRecorder = (*Metrics)(nil)
	_ MetricsRecorder = (*NopMetrics)(nil)
)

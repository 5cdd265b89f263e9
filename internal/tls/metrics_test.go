package tls

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test")

	m.RecordResolution(ResolutionResolved)
	m.RecordResolution(ResolutionResolved)
	m.RecordResolution(ResolutionFallback)
	m.RecordValidation("GoTLS", "valid")
	m.RecordComplianceReorder(true)
	m.RecordComplianceReorder(false)
	m.RecordConfigLookup("outbound", LookupStore)
	m.RecordBoundObject(KindSocket)
	m.RecordStoreOperation("file", StoreHit)
	m.RecordStoreOperation("vault", StoreOpen)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.providerResolutions.WithLabelValues(ResolutionResolved)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.providerResolutions.WithLabelValues(ResolutionFallback)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.providerValidations.WithLabelValues("GoTLS", "valid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.complianceReorders.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.complianceReorders.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.configLookups.WithLabelValues("outbound", LookupStore)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.boundObjects.WithLabelValues(KindSocket)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.storeOperations.WithLabelValues("vault", StoreOpen)))

	count, err := testutil.GatherAndCount(m.Registry(), "test_store_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewMetrics_DefaultNamespace(t *testing.T) {
	m := NewMetrics("")
	m.RecordBoundObject(KindEngine)

	count, err := testutil.GatherAndCount(m.Registry(), "avatls_binding_objects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewMetrics_WithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("custom", WithRegistry(reg))
	assert.Same(t, reg, m.Registry())

	m.RecordConfigLookup("inbound", LookupDefaults)
	count, err := testutil.GatherAndCount(reg, "custom_config_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNopMetrics(t *testing.T) {
	var m MetricsRecorder = NewNopMetrics()
	assert.NotPanics(t, func() {
		m.RecordResolution(ResolutionCached)
		m.RecordValidation("GoTLS", "valid")
		m.RecordComplianceReorder(true)
		m.RecordConfigLookup("outbound", LookupEmpty)
		m.RecordBoundObject(KindServerSocket)
		m.RecordStoreOperation("file", StoreMiss)
	})
}

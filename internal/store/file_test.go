package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

const storeYAML = `
default:
  security-level: ${AVATLS_TEST_LEVEL:-MEDIUM}
aliases:
  api:
    properties:
      protocol: "TLSv1.2"
      hostname-verification: "false"
    inbound:
      client-auth: need
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestParseDocument(t *testing.T) {
	t.Setenv("AVATLS_TEST_LEVEL", "HIGH")

	doc, err := ParseDocument([]byte(storeYAML))
	require.NoError(t, err)

	assert.Equal(t, "HIGH", doc.Default["security-level"])
	require.Contains(t, doc.Aliases, "api")
	assert.Equal(t, "false", doc.Aliases["api"].Properties["hostname-verification"])
	assert.Equal(t, "need", doc.Aliases["api"].Inbound["client-auth"])

	_, err = ParseDocument([]byte("aliases: [unclosed"))
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tls.yaml")
	writeFile(t, path, storeYAML)

	metrics := avatls.NewMetrics("test", avatls.WithRegistry(prometheus.NewRegistry()))
	s, err := NewFileStore(path, WithMetrics(metrics))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	out, err := s.GetProperties(ctx, "api", tlsconfig.Outbound)
	require.NoError(t, err)
	assert.Equal(t, tlsconfig.Properties{"protocol": "TLSv1.2", "hostname-verification": "false"}, out)

	in, err := s.GetProperties(ctx, "api", tlsconfig.Inbound)
	require.NoError(t, err)
	assert.Equal(t, "need", in["client-auth"])

	missing, err := s.GetProperties(ctx, "other", tlsconfig.Outbound)
	require.NoError(t, err)
	assert.Nil(t, missing)

	def, err := s.GetDefaultProperties(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MEDIUM", def["security-level"])

	count, err := testutil.GatherAndCount(metrics.Registry(), "test_store_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewFileStore_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read store file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "aliases: [unclosed")
	_, err = NewFileStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestFileStore_ReloadKeepsLastGoodDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tls.yaml")
	writeFile(t, path, storeYAML)

	s, err := NewFileStore(path)
	require.NoError(t, err)

	writeFile(t, path, "aliases: [unclosed")
	require.Error(t, s.Reload())

	p, err := s.GetProperties(context.Background(), "api", tlsconfig.Outbound)
	require.NoError(t, err)
	assert.Equal(t, "TLSv1.2", p["protocol"])
}

func TestFileStore_Watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tls.yaml")
	writeFile(t, path, storeYAML)

	reloaded := make(chan error, 16)
	s, err := NewFileStore(path,
		WithDebounceDelay(10*time.Millisecond),
		WithReloadCallback(func(err error) { reloaded <- err }),
	)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))
	require.NoError(t, s.Watch(ctx), "second Watch is a no-op")

	writeFile(t, path, "aliases:\n  api:\n    properties:\n      protocol: \"TLSv1.3\"\n")

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("store was not reloaded")
	}

	assert.Eventually(t, func() bool {
		p, _ := s.GetProperties(context.Background(), "api", tlsconfig.Outbound)
		return p["protocol"] == "TLSv1.3"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFileStore_CloseWithoutWatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tls.yaml")
	writeFile(t, path, storeYAML)

	s, err := NewFileStore(path)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.Equal(t, path, s.Path())
}

package tls

import (
	"crypto/x509"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avatls/test/helpers"
)

func serverChain(t *testing.T) (leaf, ca *x509.Certificate) {
	t.Helper()
	certs, err := helpers.GenerateTestCertificates()
	require.NoError(t, err)
	leaf, err = x509.ParseCertificate(certs.Server.Certificate[0])
	require.NoError(t, err)
	return leaf, certs.CACert
}

func TestCheckExpiration(t *testing.T) {
	notAfter := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := &x509.Certificate{NotAfter: notAfter}

	status := CheckExpiration(cert, time.Hour, notAfter.Add(-48*time.Hour))
	assert.False(t, status.Expired)
	assert.False(t, status.ExpiringSoon)
	assert.Equal(t, 48*time.Hour, status.TimeUntilExpiry)
	assert.Equal(t, "valid", status.String())

	status = CheckExpiration(cert, time.Hour, notAfter.Add(-30*time.Minute))
	assert.True(t, status.ExpiringSoon)
	assert.Equal(t, "expiring soon", status.String())

	status = CheckExpiration(cert, time.Hour, notAfter.Add(time.Minute))
	assert.True(t, status.Expired)
	assert.Equal(t, "expired", status.String())

	assert.True(t, CheckExpiration(nil, time.Hour, notAfter).Expired)
}

func TestIsSelfSigned(t *testing.T) {
	leaf, ca := serverChain(t)

	assert.True(t, IsSelfSigned(ca))
	assert.False(t, IsSelfSigned(leaf))
	assert.False(t, IsSelfSigned(nil))
}

func TestFingerprint(t *testing.T) {
	leaf, ca := serverChain(t)

	fp := Fingerprint(leaf)
	assert.Len(t, fp, 32*3-1)
	assert.Regexp(t, `^([0-9A-F]{2}:){31}[0-9A-F]{2}$`, fp)
	assert.NotEqual(t, fp, Fingerprint(ca))
	assert.Equal(t, fp, Fingerprint(leaf))
	assert.Empty(t, Fingerprint(nil))
}

func TestMatchesHost(t *testing.T) {
	leaf, _ := serverChain(t)

	assert.True(t, MatchesHost(leaf, helpers.ServerHost))
	assert.True(t, MatchesHost(leaf, "LOCALHOST"))
	assert.True(t, MatchesHost(leaf, "127.0.0.1"))
	assert.False(t, MatchesHost(leaf, "10.0.0.1"))
	assert.False(t, MatchesHost(leaf, "example.com"))
	assert.False(t, MatchesHost(leaf, ""))
	assert.False(t, MatchesHost(nil, "localhost"))

	wildcard := &x509.Certificate{DNSNames: []string{"*.example.com"}, IPAddresses: []net.IP{net.ParseIP("::1")}}
	assert.True(t, MatchesHost(wildcard, "api.example.com"))
	assert.False(t, MatchesHost(wildcard, "a.b.example.com"))
	assert.False(t, MatchesHost(wildcard, "example.com"))
	assert.True(t, MatchesHost(wildcard, "::1"))
}

func TestSummarizeChain(t *testing.T) {
	leaf, ca := serverChain(t)
	now := time.Now()

	s := SummarizeChain([]*x509.Certificate{leaf, ca}, helpers.ServerHost, now)
	require.NotNil(t, s)
	assert.Equal(t, leaf.Subject.String(), s.Subject)
	assert.Equal(t, ca.Subject.String(), s.Issuer)
	assert.Equal(t, Fingerprint(leaf), s.Fingerprint)
	assert.True(t, s.HostMatch)
	assert.False(t, s.SelfSigned)
	assert.True(t, s.HasRoot)
	assert.Equal(t, 2, s.ChainLength)
	assert.Zero(t, s.Intermediate)
	assert.True(t, s.Expiration.ExpiringSoon, "test certificates live for a day")

	s = SummarizeChain([]*x509.Certificate{leaf}, "other.host", now)
	require.NotNil(t, s)
	assert.False(t, s.HostMatch)
	assert.False(t, s.HasRoot)

	assert.Nil(t, SummarizeChain(nil, "localhost", now))
}

package stack

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

func TestClientAuth_String(t *testing.T) {
	tests := []struct {
		auth ClientAuth
		want string
	}{
		{ClientAuthNone, "none"},
		{ClientAuthWant, "want"},
		{ClientAuthNeed, "need"},
		{ClientAuth(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.auth.String())
		})
	}
}

func TestParseClientAuth(t *testing.T) {
	tests := []struct {
		input  string
		want   ClientAuth
		wantOK bool
	}{
		{"", ClientAuthNone, true},
		{"none", ClientAuthNone, true},
		{"want", ClientAuthWant, true},
		{"need", ClientAuthNeed, true},
		{"always", ClientAuthNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseClientAuth(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameters_Clone(t *testing.T) {
	p := Parameters{
		CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"},
		Protocols:    []string{avatls.ProtocolTLS12},
	}

	c := p.Clone()
	c.CipherSuites[0] = "changed"
	c.Protocols[0] = "changed"

	assert.Equal(t, "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", p.CipherSuites[0])
	assert.Equal(t, avatls.ProtocolTLS12, p.Protocols[0])
}

func TestDefaultParameters(t *testing.T) {
	t.Run("verifying base enables hostname verification", func(t *testing.T) {
		p := defaultParameters(&tls.Config{MinVersion: tls.VersionTLS12}, avatls.SupportedCipherSuiteNames())

		assert.Equal(t, EndpointIdentificationHTTPS, p.EndpointIdentification)
		assert.Equal(t, []string{avatls.ProtocolTLS13, avatls.ProtocolTLS12}, p.Protocols)
		assert.NotEmpty(t, p.CipherSuites)
		assert.Equal(t, ClientAuthNone, p.ClientAuth)
	})

	t.Run("insecure base disables hostname verification", func(t *testing.T) {
		// #nosec G402 -- test configuration
		p := defaultParameters(&tls.Config{InsecureSkipVerify: true}, avatls.SupportedCipherSuiteNames())
		assert.Empty(t, p.EndpointIdentification)
	})

	t.Run("explicit suites are kept", func(t *testing.T) {
		base := &tls.Config{CipherSuites: []uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}}
		p := defaultParameters(base, avatls.SupportedCipherSuiteNames())
		assert.Equal(t, []string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"}, p.CipherSuites)
	})

	t.Run("client auth is carried over", func(t *testing.T) {
		p := defaultParameters(&tls.Config{ClientAuth: tls.RequireAndVerifyClientCert}, nil)
		assert.Equal(t, ClientAuthNeed, p.ClientAuth)
	})
}

func TestBuildConfig(t *testing.T) {
	base := &tls.Config{MinVersion: tls.VersionTLS12}

	t.Run("maps suites and protocols", func(t *testing.T) {
		cfg := buildConfig(base, Parameters{
			CipherSuites: []string{
				"TLS_AES_128_GCM_SHA256",
				"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
				"UNKNOWN_SUITE",
			},
			Protocols:              []string{avatls.ProtocolTLS12},
			EndpointIdentification: EndpointIdentificationHTTPS,
		}, true, "example.com")

		assert.Equal(t, []uint16{tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384}, cfg.CipherSuites)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MaxVersion)
		assert.Equal(t, "example.com", cfg.ServerName)
		assert.False(t, cfg.InsecureSkipVerify)
		assert.Nil(t, cfg.VerifyConnection)
	})

	t.Run("only TLS 1.3 suites keep stack defaults", func(t *testing.T) {
		cfg := buildConfig(base, Parameters{CipherSuites: []string{"TLS_AES_128_GCM_SHA256"}}, true, "")
		assert.Nil(t, cfg.CipherSuites)
	})

	t.Run("empty endpoint identification verifies the chain only", func(t *testing.T) {
		cfg := buildConfig(base, Parameters{}, true, "example.com")
		assert.True(t, cfg.InsecureSkipVerify)
		assert.NotNil(t, cfg.VerifyConnection)
	})

	t.Run("server maps client auth", func(t *testing.T) {
		cfg := buildConfig(base, Parameters{ClientAuth: ClientAuthWant}, false, "")
		assert.Equal(t, tls.VerifyClientCertIfGiven, cfg.ClientAuth)
		assert.False(t, cfg.InsecureSkipVerify)
	})

	t.Run("base is not modified", func(t *testing.T) {
		_ = buildConfig(base, Parameters{Protocols: []string{avatls.ProtocolTLS13}}, true, "x")
		assert.Equal(t, uint16(0), base.MaxVersion)
		assert.Empty(t, base.ServerName)
	})
}

func TestVerifyChainOnly_NoPeerCertificates(t *testing.T) {
	verify := verifyChainOnly(nil, nil)
	err := verify(tls.ConnectionState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoPeerCertificates)
}

func TestClientAuthRoundTrip(t *testing.T) {
	for _, a := range []ClientAuth{ClientAuthNone, ClientAuthWant, ClientAuthNeed} {
		assert.Equal(t, a, clientAuthFromTLS(clientAuthToTLS(a)))
	}
}

package stack

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"slices"

	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// EndpointIdentificationHTTPS turns on hostname verification against the
// peer certificate. An empty algorithm verifies the chain only.
const EndpointIdentificationHTTPS = "HTTPS"

// ClientAuth is the client certificate policy of a server-side object.
type ClientAuth int

// Client authentication modes.
const (
	ClientAuthNone ClientAuth = iota
	ClientAuthWant
	ClientAuthNeed
)

// String returns the string representation of the client auth mode.
func (a ClientAuth) String() string {
	switch a {
	case ClientAuthNone:
		return "none"
	case ClientAuthWant:
		return "want"
	case ClientAuthNeed:
		return "need"
	default:
		return "unknown"
	}
}

// ParseClientAuth parses none, want or need.
func ParseClientAuth(s string) (ClientAuth, bool) {
	switch s {
	case "none", "":
		return ClientAuthNone, true
	case "want":
		return ClientAuthWant, true
	case "need":
		return ClientAuthNeed, true
	default:
		return ClientAuthNone, false
	}
}

// Parameters is the mutable parameter set of a socket, server socket or engine.
type Parameters struct {
	// CipherSuites are the enabled suite names, in preference order.
	CipherSuites []string

	// Protocols are the enabled protocol names, newest first.
	Protocols []string

	// EndpointIdentification is the hostname verification algorithm.
	EndpointIdentification string

	// ClientAuth is only meaningful on the server side.
	ClientAuth ClientAuth
}

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	return Parameters{
		CipherSuites:           slices.Clone(p.CipherSuites),
		Protocols:              slices.Clone(p.Protocols),
		EndpointIdentification: p.EndpointIdentification,
		ClientAuth:             p.ClientAuth,
	}
}

// Configurable is implemented by every connection object the stack creates.
type Configurable interface {
	// Parameters returns a copy of the current parameters.
	Parameters() Parameters

	// SetParameters replaces the parameters. Changes made after the
	// handshake has started do not affect the running session.
	SetParameters(p Parameters)

	// SupportedCipherSuites lists every suite the object could enable.
	SupportedCipherSuites() []string
}

var errNoPeerCertificates = errors.New("peer presented no certificates")

// defaultParameters derives the stock parameters from a base configuration.
func defaultParameters(base *tls.Config, supported []string) Parameters {
	p := Parameters{
		Protocols:  avatls.ProtocolsInRange(base.MinVersion, base.MaxVersion),
		ClientAuth: clientAuthFromTLS(base.ClientAuth),
	}

	if len(base.CipherSuites) > 0 {
		p.CipherSuites = avatls.CipherSuiteNames(base.CipherSuites)
	} else {
		for _, name := range avatls.DefaultCipherSuiteNames() {
			if slices.Contains(supported, name) {
				p.CipherSuites = append(p.CipherSuites, name)
			}
		}
	}

	if !base.InsecureSkipVerify {
		p.EndpointIdentification = EndpointIdentificationHTTPS
	}
	return p
}

// buildConfig materialises parameters into a per-connection tls.Config.
func buildConfig(base *tls.Config, p Parameters, client bool, serverName string) *tls.Config {
	cfg := base.Clone()

	if len(p.CipherSuites) > 0 {
		ids := make([]uint16, 0, len(p.CipherSuites))
		for _, name := range p.CipherSuites {
			suite, ok := avatls.GetCipherSuiteInfo(name)
			if !ok || suite.TLS13 {
				continue
			}
			ids = append(ids, suite.ID)
		}
		if len(ids) > 0 {
			cfg.CipherSuites = ids
		}
	}

	if minVersion, maxVersion := avatls.VersionRange(p.Protocols); minVersion != 0 {
		cfg.MinVersion = minVersion
		cfg.MaxVersion = maxVersion
	}

	if client {
		if cfg.ServerName == "" {
			cfg.ServerName = serverName
		}
		if p.EndpointIdentification == "" && !base.InsecureSkipVerify {
			// #nosec G402 -- the chain is still verified in VerifyConnection.
			cfg.InsecureSkipVerify = true
			cfg.VerifyConnection = verifyChainOnly(cfg.RootCAs, base.VerifyConnection)
		}
		return cfg
	}

	cfg.ClientAuth = clientAuthToTLS(p.ClientAuth)
	return cfg
}

// verifyChainOnly verifies the peer chain against roots without checking
// the host name. A nil pool means the system roots.
func verifyChainOnly(roots *x509.CertPool, next func(tls.ConnectionState) error) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errNoPeerCertificates
		}

		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
			return err
		}

		if next != nil {
			return next(cs)
		}
		return nil
	}
}

func clientAuthFromTLS(a tls.ClientAuthType) ClientAuth {
	switch a {
	case tls.RequireAnyClientCert, tls.RequireAndVerifyClientCert:
		return ClientAuthNeed
	case tls.RequestClientCert, tls.VerifyClientCertIfGiven:
		return ClientAuthWant
	default:
		return ClientAuthNone
	}
}

func clientAuthToTLS(a ClientAuth) tls.ClientAuthType {
	switch a {
	case ClientAuthNeed:
		return tls.RequireAndVerifyClientCert
	case ClientAuthWant:
		return tls.VerifyClientCertIfGiven
	default:
		return tls.NoClientCert
	}
}

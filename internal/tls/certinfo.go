package tls

import (
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultExpiryWarning is the window in which a certificate counts as expiring soon.
const DefaultExpiryWarning = 30 * 24 * time.Hour

// ExpirationStatus describes where a certificate stands relative to its NotAfter.
type ExpirationStatus struct {
	Expired         bool
	ExpiringSoon    bool
	TimeUntilExpiry time.Duration
}

// String returns a short label for reports.
func (s ExpirationStatus) String() string {
	switch {
	case s.Expired:
		return "expired"
	case s.ExpiringSoon:
		return "expiring soon"
	default:
		return "valid"
	}
}

// CheckExpiration reports whether cert is expired, or expires within threshold, at now.
func CheckExpiration(cert *x509.Certificate, threshold time.Duration, now time.Time) ExpirationStatus {
	if cert == nil {
		return ExpirationStatus{Expired: true}
	}

	remaining := cert.NotAfter.Sub(now)
	switch {
	case now.After(cert.NotAfter):
		return ExpirationStatus{Expired: true, TimeUntilExpiry: remaining}
	case remaining <= threshold:
		return ExpirationStatus{ExpiringSoon: true, TimeUntilExpiry: remaining}
	default:
		return ExpirationStatus{TimeUntilExpiry: remaining}
	}
}

// IsSelfSigned reports whether cert is signed by its own key.
func IsSelfSigned(cert *x509.Certificate) bool {
	if cert == nil || cert.Issuer.String() != cert.Subject.String() {
		return false
	}
	return cert.CheckSignatureFrom(cert) == nil
}

// Fingerprint returns the colon-separated SHA-256 fingerprint of cert.
func Fingerprint(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// MatchesHost reports whether cert names host in its SANs or, for legacy
// certificates, its Common Name. Wildcards cover a single label.
func MatchesHost(cert *x509.Certificate, host string) bool {
	if cert == nil || host == "" {
		return false
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, certIP := range cert.IPAddresses {
			if ip.Equal(certIP) {
				return true
			}
		}
		return false
	}

	for _, name := range cert.DNSNames {
		if matchHostname(host, name) {
			return true
		}
	}
	return matchHostname(host, cert.Subject.CommonName)
}

func matchHostname(host, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.EqualFold(host, pattern) {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		if idx := strings.Index(host, "."); idx > 0 {
			return strings.EqualFold(host[idx:], pattern[1:])
		}
	}
	return false
}

// ChainSummary is what a peer presented during a handshake.
type ChainSummary struct {
	Subject      string
	Issuer       string
	Fingerprint  string
	NotAfter     time.Time
	Expiration   ExpirationStatus
	SelfSigned   bool
	HostMatch    bool
	ChainLength  int
	Intermediate int
	HasRoot      bool
}

// SummarizeChain describes the leaf of certs and the shape of the chain
// behind it. It returns nil for an empty chain.
func SummarizeChain(certs []*x509.Certificate, host string, now time.Time) *ChainSummary {
	if len(certs) == 0 {
		return nil
	}

	leaf := certs[0]
	s := &ChainSummary{
		Subject:     leaf.Subject.String(),
		Issuer:      leaf.Issuer.String(),
		Fingerprint: Fingerprint(leaf),
		NotAfter:    leaf.NotAfter,
		Expiration:  CheckExpiration(leaf, DefaultExpiryWarning, now),
		SelfSigned:  IsSelfSigned(leaf),
		HostMatch:   MatchesHost(leaf, host),
		ChainLength: len(certs),
	}
	for _, cert := range certs[1:] {
		if IsSelfSigned(cert) {
			s.HasRoot = true
			continue
		}
		s.Intermediate++
	}
	return s
}

// Package helpers provides common test utilities for the avatls tests.
package helpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// TestCertificates holds a throwaway CA with one server and one client certificate.
type TestCertificates struct {
	CAKey     *ecdsa.PrivateKey
	CACert    *x509.Certificate
	CACertPEM []byte

	Server tls.Certificate
	Client tls.Certificate

	ServerCertPEM []byte
	ServerKeyPEM  []byte
}

// ServerHost is the only DNS name the generated server certificate carries.
const ServerHost = "localhost"

// GenerateTestCertificates generates a CA plus server and client certificates.
// The server certificate is valid for localhost and 127.0.0.1 only.
func GenerateTestCertificates() (*TestCertificates, error) {
	tc := &TestCertificates{}

	if err := tc.generateCA(); err != nil {
		return nil, fmt.Errorf("failed to generate CA: %w", err)
	}

	server, certPEM, keyPEM, err := tc.issue(&x509.Certificate{
		Subject:     pkix.Name{CommonName: ServerHost},
		DNSNames:    []string{ServerHost},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate server certificate: %w", err)
	}
	tc.Server = server
	tc.ServerCertPEM = certPEM
	tc.ServerKeyPEM = keyPEM

	client, _, _, err := tc.issue(&x509.Certificate{
		Subject:     pkix.Name{CommonName: "avatls-test-client"},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate client certificate: %w", err)
	}
	tc.Client = client

	return tc, nil
}

func (tc *TestCertificates) generateCA() error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := serialNumber()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "avatls Test Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	tc.CAKey = key
	tc.CACert = cert
	tc.CACertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return nil
}

func (tc *TestCertificates) issue(template *x509.Certificate) (tls.Certificate, []byte, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}

	serial, err := serialNumber()
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	template.SerialNumber = serial
	template.NotBefore = time.Now().Add(-time.Hour)
	template.NotAfter = time.Now().Add(24 * time.Hour)
	template.KeyUsage = x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, template, tc.CACert, &key.PublicKey, tc.CAKey)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	return cert, certPEM, keyPEM, nil
}

// CertPool returns a pool holding only the test CA.
func (tc *TestCertificates) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(tc.CACert)
	return pool
}

// ServerTLSConfig returns a server configuration that trusts the test CA for client certificates.
func (tc *TestCertificates) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{tc.Server},
		ClientCAs:    tc.CertPool(),
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientTLSConfig returns a client configuration that trusts the test CA.
func (tc *TestCertificates) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:      tc.CertPool(),
		Certificates: []tls.Certificate{tc.Client},
		MinVersion:   tls.VersionTLS12,
	}
}

func serialNumber() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}

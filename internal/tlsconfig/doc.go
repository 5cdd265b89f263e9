// Package tlsconfig resolves the named TLS configuration for an alias.
//
// A Store maps aliases to property bags:
//
//	cipher-suites:         TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 TLS_AES_128_GCM_SHA256
//	protocol:              TLSv1.2,TLSv1.3
//	hostname-verification: "true"
//	security-level:        HIGH
//	client-auth:           want
//
// The Resolver never fails. A failing store, an unknown alias or an invalid
// property all degrade to defaults: HIGH security level, hostname
// verification on, and the stack's own suites and protocols. An empty alias
// asks for the store's default bag and falls back to SecurityDefaults.
package tlsconfig

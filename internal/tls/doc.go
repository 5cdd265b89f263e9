// Package tls holds the helpers shared by the avatls provider, configuration
// and binding layers.
//
//   - Cipher suite registry built from crypto/tls, with FIPS and security
//     level classification
//   - Security level filtering (LOW, MEDIUM, HIGH) that never returns an
//     empty list and keeps HIGH within MEDIUM within LOW
//   - Protocol name resolution ("TLS", "TLSv1.2", "TLSv1.2,TLSv1.3", ...)
//   - Sentinel and typed configuration errors
//   - Prometheus metrics for resolution, validation, reorder, lookup, binding
//     and store reads
//   - Peer certificate summaries (fingerprint, expiry, host match)
//
// # Security Levels
//
//   - HIGH: TLS 1.3 suites and ECDHE suites with AES-GCM or ChaCha20-Poly1305
//   - MEDIUM: every suite crypto/tls considers secure
//   - LOW: everything the stack implements, including insecure suites
//
// Example:
//
//	advertised := tls.FilterByLevel(tls.SupportedCipherSuiteNames(), tls.SecurityLevelHigh)
//	protocols, err := tls.ResolveProtocols("TLSv1.2,TLSv1.3")
package tls

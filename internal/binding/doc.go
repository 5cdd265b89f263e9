// Package binding applies an alias's named TLS configuration to every
// connection object the stock stack creates.
//
// Each wrapper resolves its alias once, at construction, and applies the
// result to every socket, server socket or engine it creates before handing
// it back. Nothing else about the wrapped objects changes: handshakes,
// I/O and close go straight to the stock implementation.
//
// Parameter application follows a fixed order:
//
//  1. The stock supported suites are filtered by the security level.
//  2. Configured suites permitted by that filter become the enabled suites.
//  3. Configured protocols replace the enabled protocols.
//  4. Hostname verification selects the HTTPS endpoint identification.
//
// An empty configuration changes nothing, so a failing store degrades to
// the stock defaults.
package binding

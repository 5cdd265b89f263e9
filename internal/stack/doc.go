// Package stack is the stock TLS implementation backed by crypto/tls.
//
// A Context hands out client sockets, server sockets and non-blocking
// engines. Every object carries mutable Parameters (cipher suites,
// protocols, endpoint identification, client auth) that are turned into a
// per-connection tls.Config when the handshake starts, so adjusting one
// object never leaks into another.
//
// Engines do no I/O. The caller moves bytes between Wrap/Unwrap and the
// network, and runs DelegatedTask when HandshakeStatus reports NeedTask:
//
//	engine := ctx.NewEngine("example.com", 443)
//	_ = engine.BeginHandshake()
//	if task := engine.DelegatedTask(); task != nil {
//		task()
//	}
//	res, err := engine.Wrap(nil, &netOut)
package stack

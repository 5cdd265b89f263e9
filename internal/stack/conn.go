package stack

import (
	"context"
	"crypto/tls"
	"net"
	"slices"
	"sync"
	"time"
)

// Socket is a TLS connection whose parameters can be adjusted until the
// handshake starts.
type Socket interface {
	net.Conn
	Configurable

	// Handshake runs the TLS handshake if it has not run yet.
	Handshake(ctx context.Context) error

	// ConnectionState returns the negotiated state; zero before the handshake.
	ConnectionState() tls.ConnectionState
}

// Conn is the crypto/tls backed Socket. The tls.Conn is only built when the
// handshake starts, from a clone of the context configuration with the
// current Parameters applied.
type Conn struct {
	raw        net.Conn
	base       *tls.Config
	client     bool
	serverName string
	supported  []string

	mu     sync.Mutex
	params Parameters
	tc     *tls.Conn
}

func newConn(raw net.Conn, base *tls.Config, client bool, serverName string, params Parameters, supported []string) *Conn {
	return &Conn{
		raw:        raw,
		base:       base,
		client:     client,
		serverName: serverName,
		supported:  supported,
		params:     params,
	}
}

// Parameters returns a copy of the current parameters.
func (c *Conn) Parameters() Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Clone()
}

// SetParameters replaces the parameters used for the handshake.
func (c *Conn) SetParameters(p Parameters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p.Clone()
}

// SupportedCipherSuites lists every suite the connection could enable.
func (c *Conn) SupportedCipherSuites() []string {
	return slices.Clone(c.supported)
}

// IsClient reports whether the connection runs the client side of the handshake.
func (c *Conn) IsClient() bool {
	return c.client
}

func (c *Conn) tlsConn() *tls.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tc == nil {
		cfg := buildConfig(c.base, c.params, c.client, c.serverName)
		if c.client {
			c.tc = tls.Client(c.raw, cfg)
		} else {
			c.tc = tls.Server(c.raw, cfg)
		}
	}
	return c.tc
}

// TLS returns the crypto/tls connection, fixing the parameters if the
// handshake has not started yet.
func (c *Conn) TLS() *tls.Conn {
	return c.tlsConn()
}

// Handshake runs the TLS handshake if it has not run yet.
func (c *Conn) Handshake(ctx context.Context) error {
	return c.tlsConn().HandshakeContext(ctx)
}

// ConnectionState returns the negotiated state.
func (c *Conn) ConnectionState() tls.ConnectionState {
	c.mu.Lock()
	tc := c.tc
	c.mu.Unlock()

	if tc == nil {
		return tls.ConnectionState{}
	}
	return tc.ConnectionState()
}

// Read reads application data, handshaking first if needed.
func (c *Conn) Read(b []byte) (int, error) {
	return c.tlsConn().Read(b)
}

// Write writes application data, handshaking first if needed.
func (c *Conn) Write(b []byte) (int, error) {
	return c.tlsConn().Write(b)
}

// Close sends close_notify when a session exists and closes the transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	tc := c.tc
	c.mu.Unlock()

	if tc == nil {
		return c.raw.Close()
	}
	return tc.Close()
}

// NetConn returns the underlying transport.
func (c *Conn) NetConn() net.Conn {
	return c.raw
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// SetDeadline sets the read and write deadlines on the transport.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the transport.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the transport.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.raw.SetWriteDeadline(t)
}

var _ Socket = (*Conn)(nil)

package stack

import (
	"crypto/tls"
	"net"
	"slices"
	"sync"
)

// ServerSocket is a listener whose accepted connections inherit its parameters.
type ServerSocket interface {
	net.Listener
	Configurable
}

// Listener is the crypto/tls backed ServerSocket.
type Listener struct {
	ln        net.Listener
	base      *tls.Config
	supported []string

	mu     sync.RWMutex
	params Parameters
}

func newListener(ln net.Listener, base *tls.Config, params Parameters, supported []string) *Listener {
	return &Listener{
		ln:        ln,
		base:      base,
		supported: supported,
		params:    params,
	}
}

// Accept waits for the next connection and wraps it as a server-side Conn.
func (l *Listener) Accept() (net.Conn, error) {
	return l.AcceptTLS()
}

// AcceptTLS is Accept with the concrete return type.
func (l *Listener) AcceptTLS() (*Conn, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(raw, l.base, false, "", l.Parameters(), l.supported), nil
}

// Close closes the underlying listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Parameters returns a copy of the parameters handed to accepted connections.
func (l *Listener) Parameters() Parameters {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.params.Clone()
}

// SetParameters replaces the parameters for connections accepted from now on.
func (l *Listener) SetParameters(p Parameters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = p.Clone()
}

// SupportedCipherSuites lists every suite accepted connections could enable.
func (l *Listener) SupportedCipherSuites() []string {
	return slices.Clone(l.supported)
}

var _ ServerSocket = (*Listener)(nil)

package stack

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"slices"

	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Context is a TLS context: the source of factories and engines that share
// one base configuration.
type Context interface {
	// Protocol returns the protocol name the context was created for.
	Protocol() string

	// SocketFactory returns the client-side socket factory.
	SocketFactory() SocketFactory

	// ServerSocketFactory returns the server-side socket factory.
	ServerSocketFactory() ServerSocketFactory

	// NewEngine creates an engine for the given peer.
	NewEngine(host string, port int) Engine

	// DefaultParameters returns the parameters new objects start with.
	DefaultParameters() Parameters

	// SupportedParameters returns every suite and protocol the context can enable.
	SupportedParameters() Parameters
}

// SocketFactory creates client-side sockets.
type SocketFactory interface {
	// CreateSocket dials addr and returns a socket whose handshake has not started.
	CreateSocket(ctx context.Context, network, addr string) (Socket, error)

	// CreateSocketOver layers a client socket on an existing connection.
	CreateSocketOver(raw net.Conn, host string) (Socket, error)

	DefaultCipherSuites() []string
	SupportedCipherSuites() []string
}

// ServerSocketFactory creates server-side listeners.
type ServerSocketFactory interface {
	// CreateServerSocket listens on addr.
	CreateServerSocket(ctx context.Context, network, addr string) (ServerSocket, error)

	// CreateServerSocketOver wraps an existing listener.
	CreateServerSocketOver(ln net.Listener) (ServerSocket, error)

	// CreateServerConn layers a server-side socket on an accepted connection.
	CreateServerConn(raw net.Conn) (Socket, error)

	DefaultCipherSuites() []string
	SupportedCipherSuites() []string
}

// Dialer opens the transport connection under a client socket.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Option configures a context.
type Option func(*tlsContext)

// WithSupportedCipherSuites limits the suites the context can enable.
func WithSupportedCipherSuites(names []string) Option {
	return func(c *tlsContext) {
		c.supported = slices.Clone(names)
	}
}

// WithDialer sets the dialer used by CreateSocket.
func WithDialer(d Dialer) Option {
	return func(c *tlsContext) {
		c.dialer = d
	}
}

// WithListenConfig sets the listen config used by CreateServerSocket.
func WithListenConfig(lc *net.ListenConfig) Option {
	return func(c *tlsContext) {
		c.listen = lc
	}
}

type tlsContext struct {
	protocol  string
	base      *tls.Config
	supported []string
	dialer    Dialer
	listen    *net.ListenConfig
	defaults  Parameters
}

// NewContext creates a crypto/tls backed context. protocol is either a
// generic name ("TLS") or a version name ("TLSv1.2") that caps the maximum
// version. base may be nil.
func NewContext(protocol string, base *tls.Config, opts ...Option) (Context, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if base != nil {
		cfg = base.Clone()
	}

	if protocol != "" {
		protocols, err := avatls.ResolveProtocols(protocol)
		if err != nil {
			return nil, fmt.Errorf("context protocol %q: %w", protocol, err)
		}
		minVersion, maxVersion := avatls.VersionRange(protocols)
		if cfg.MaxVersion == 0 || cfg.MaxVersion > maxVersion {
			cfg.MaxVersion = maxVersion
		}
		if len(protocols) == 1 && cfg.MinVersion > minVersion {
			cfg.MinVersion = minVersion
		}
	}

	c := &tlsContext{
		protocol:  protocol,
		base:      cfg,
		supported: avatls.SupportedCipherSuiteNames(),
		dialer:    &net.Dialer{},
		listen:    &net.ListenConfig{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.defaults = defaultParameters(c.base, c.supported)
	return c, nil
}

func (c *tlsContext) Protocol() string { return c.protocol }

func (c *tlsContext) SocketFactory() SocketFactory {
	return &socketFactory{ctx: c}
}

func (c *tlsContext) ServerSocketFactory() ServerSocketFactory {
	return &serverSocketFactory{ctx: c}
}

func (c *tlsContext) NewEngine(host string, port int) Engine {
	return newEngine(c.base, host, port, c.defaults.Clone(), c.supported)
}

func (c *tlsContext) DefaultParameters() Parameters {
	return c.defaults.Clone()
}

func (c *tlsContext) SupportedParameters() Parameters {
	return Parameters{
		CipherSuites: slices.Clone(c.supported),
		Protocols:    avatls.ProtocolsInRange(c.base.MinVersion, c.base.MaxVersion),
	}
}

type socketFactory struct {
	ctx *tlsContext
}

func (f *socketFactory) CreateSocket(ctx context.Context, network, addr string) (Socket, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	raw, err := f.ctx.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return newConn(raw, f.ctx.base, true, host, f.ctx.defaults.Clone(), f.ctx.supported), nil
}

func (f *socketFactory) CreateSocketOver(raw net.Conn, host string) (Socket, error) {
	return newConn(raw, f.ctx.base, true, host, f.ctx.defaults.Clone(), f.ctx.supported), nil
}

func (f *socketFactory) DefaultCipherSuites() []string {
	return slices.Clone(f.ctx.defaults.CipherSuites)
}

func (f *socketFactory) SupportedCipherSuites() []string {
	return slices.Clone(f.ctx.supported)
}

type serverSocketFactory struct {
	ctx *tlsContext
}

func (f *serverSocketFactory) CreateServerSocket(ctx context.Context, network, addr string) (ServerSocket, error) {
	ln, err := f.ctx.listen.Listen(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return newListener(ln, f.ctx.base, f.ctx.defaults.Clone(), f.ctx.supported), nil
}

func (f *serverSocketFactory) CreateServerSocketOver(ln net.Listener) (ServerSocket, error) {
	return newListener(ln, f.ctx.base, f.ctx.defaults.Clone(), f.ctx.supported), nil
}

func (f *serverSocketFactory) CreateServerConn(raw net.Conn) (Socket, error) {
	return newConn(raw, f.ctx.base, false, "", f.ctx.defaults.Clone(), f.ctx.supported), nil
}

func (f *serverSocketFactory) DefaultCipherSuites() []string {
	return slices.Clone(f.ctx.defaults.CipherSuites)
}

func (f *serverSocketFactory) SupportedCipherSuites() []string {
	return slices.Clone(f.ctx.supported)
}

package binding

import (
	"context"
	"net"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/stack"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Resolver supplies the named configuration a wrapper binds to.
type Resolver interface {
	Lookup(ctx context.Context, alias string) tlsconfig.NamedConfig
	LookupInbound(ctx context.Context, alias string) tlsconfig.NamedConfig
}

// Option is a functional option shared by every wrapper.
type Option func(*options)

type options struct {
	logger  observability.Logger
	metrics avatls.MetricsRecorder
}

// WithLogger sets the logger for the wrapper.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the wrapper.
func WithMetrics(metrics avatls.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:  observability.NopLogger(),
		metrics: avatls.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// binding is the state every wrapper carries: one resolved configuration,
// fixed at construction.
type binding struct {
	id      string
	cfg     tlsconfig.NamedConfig
	logger  observability.Logger
	metrics avatls.MetricsRecorder
}

func newBinding(kind string, cfg tlsconfig.NamedConfig, o options) binding {
	id := uuid.New().String()
	return binding{
		id:  id,
		cfg: cfg,
		logger: o.logger.With(
			observability.String("binding_id", id),
			observability.String("binding_kind", kind),
			observability.String("alias", cfg.Alias),
		),
		metrics: o.metrics,
	}
}

// ID returns the unique id of the wrapper, used in logs.
func (b *binding) ID() string {
	return b.id
}

// Config returns the configuration the wrapper applies.
func (b *binding) Config() tlsconfig.NamedConfig {
	return b.cfg
}

func (b *binding) bind(kind string, target stack.Configurable) {
	applied := apply(target, b.cfg, b.logger)
	b.metrics.RecordBoundObject(kind)
	b.logger.Debug("connection object bound", observability.Bool("applied", applied))
}

// supported filters a stock supported list by the configured security level.
func (b *binding) supported(stock []string) []string {
	return avatls.FilterByLevel(stock, b.cfg.SecurityLevel)
}

// defaults predicts the suites objects from this wrapper start with.
func (b *binding) defaults(stockDefaults, stockSupported []string) []string {
	if b.cfg.IsEmpty() || !b.cfg.HasCipherOverride() {
		return stockDefaults
	}
	if enabled := enabledCipherSuites(b.cfg, stockSupported); len(enabled) > 0 {
		return enabled
	}
	return stockDefaults
}

// SocketFactory creates client sockets carrying one alias's configuration.
type SocketFactory struct {
	binding
	stock stack.SocketFactory
}

// WrapSocketFactory resolves alias once and returns a factory that applies
// the result to every socket stock creates.
func WrapSocketFactory(ctx context.Context, stock stack.SocketFactory, alias string, resolver Resolver, opts ...Option) *SocketFactory {
	o := newOptions(opts)
	return &SocketFactory{
		binding: newBinding(avatls.KindSocket, resolver.Lookup(ctx, alias), o),
		stock:   stock,
	}
}

// CreateSocket dials addr through the stock factory and applies the configuration.
func (f *SocketFactory) CreateSocket(ctx context.Context, network, addr string) (stack.Socket, error) {
	s, err := f.stock.CreateSocket(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	f.bind(avatls.KindSocket, s)
	return s, nil
}

// CreateSocketOver layers a configured client socket on raw.
func (f *SocketFactory) CreateSocketOver(raw net.Conn, host string) (stack.Socket, error) {
	s, err := f.stock.CreateSocketOver(raw, host)
	if err != nil {
		return nil, err
	}
	f.bind(avatls.KindSocket, s)
	return s, nil
}

// DefaultCipherSuites returns the suites new sockets will enable.
func (f *SocketFactory) DefaultCipherSuites() []string {
	return f.defaults(f.stock.DefaultCipherSuites(), f.stock.SupportedCipherSuites())
}

// SupportedCipherSuites returns the stock suites permitted at the configured security level.
func (f *SocketFactory) SupportedCipherSuites() []string {
	return f.supported(f.stock.SupportedCipherSuites())
}

// ServerSocketFactory creates server sockets carrying one alias's configuration.
type ServerSocketFactory struct {
	binding
	stock stack.ServerSocketFactory
}

// WrapServerSocketFactory resolves the inbound configuration for alias once
// and returns a factory that applies it to every server socket stock creates.
func WrapServerSocketFactory(ctx context.Context, stock stack.ServerSocketFactory, alias string, resolver Resolver, opts ...Option) *ServerSocketFactory {
	o := newOptions(opts)
	return &ServerSocketFactory{
		binding: newBinding(avatls.KindServerSocket, resolver.LookupInbound(ctx, alias), o),
		stock:   stock,
	}
}

// CreateServerSocket listens through the stock factory and applies the configuration.
func (f *ServerSocketFactory) CreateServerSocket(ctx context.Context, network, addr string) (stack.ServerSocket, error) {
	ln, err := f.stock.CreateServerSocket(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	f.bind(avatls.KindServerSocket, ln)
	return ln, nil
}

// CreateServerSocketOver wraps ln and applies the configuration.
func (f *ServerSocketFactory) CreateServerSocketOver(ln net.Listener) (stack.ServerSocket, error) {
	s, err := f.stock.CreateServerSocketOver(ln)
	if err != nil {
		return nil, err
	}
	f.bind(avatls.KindServerSocket, s)
	return s, nil
}

// CreateServerConn layers a configured server-side socket on an accepted connection.
func (f *ServerSocketFactory) CreateServerConn(raw net.Conn) (stack.Socket, error) {
	s, err := f.stock.CreateServerConn(raw)
	if err != nil {
		return nil, err
	}
	f.bind(avatls.KindSocket, s)
	return s, nil
}

// DefaultCipherSuites returns the suites new server sockets will enable.
func (f *ServerSocketFactory) DefaultCipherSuites() []string {
	return f.defaults(f.stock.DefaultCipherSuites(), f.stock.SupportedCipherSuites())
}

// SupportedCipherSuites returns the stock suites permitted at the configured security level.
func (f *ServerSocketFactory) SupportedCipherSuites() []string {
	return f.supported(f.stock.SupportedCipherSuites())
}

var (
	_ stack.SocketFactory       = (*SocketFactory)(nil)
	_ stack.ServerSocketFactory = (*ServerSocketFactory)(nil)
)

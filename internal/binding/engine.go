package binding

import (
	"context"

	"github.com/vyrodovalexey/avatls/internal/stack"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Engine is a stock engine with one alias's configuration applied at
// construction. Every operation except SupportedCipherSuites is the
// embedded engine's own.
type Engine struct {
	stack.Engine
	binding
}

// WrapEngine resolves alias once and applies the result to stock before
// returning. Engines in server mode use the inbound configuration.
func WrapEngine(ctx context.Context, stock stack.Engine, alias string, resolver Resolver, opts ...Option) *Engine {
	o := newOptions(opts)

	var cfg tlsconfig.NamedConfig
	if stock.UseClientMode() {
		cfg = resolver.Lookup(ctx, alias)
	} else {
		cfg = resolver.LookupInbound(ctx, alias)
	}

	e := &Engine{
		Engine:  stock,
		binding: newBinding(avatls.KindEngine, cfg, o),
	}
	e.bind(avatls.KindEngine, stock)
	return e
}

// SupportedCipherSuites returns the stock suites permitted at the configured security level.
func (e *Engine) SupportedCipherSuites() []string {
	return e.supported(e.Engine.SupportedCipherSuites())
}

// Stock returns the wrapped engine.
func (e *Engine) Stock() stack.Engine {
	return e.Engine
}

var _ stack.Engine = (*Engine)(nil)

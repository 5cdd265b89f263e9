package binding

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avatls/internal/provider"
	"github.com/vyrodovalexey/avatls/internal/stack"
)

// Context is the entry point callers use instead of a stock TLS context:
// every factory and engine it hands out is bound to an alias.
type Context struct {
	facade   *provider.Facade
	stock    stack.Context
	resolver Resolver
	opts     []Option
}

// NewContext obtains a stock context for protocol from facade. Errors from
// the provider are returned unmodified.
func NewContext(facade *provider.Facade, protocol string, resolver Resolver, opts ...Option) (*Context, error) {
	stock, err := facade.NewContext(protocol)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", facade.Name(), err)
	}
	return &Context{
		facade:   facade,
		stock:    stock,
		resolver: resolver,
		opts:     opts,
	}, nil
}

// Provider returns the name of the provider behind the context.
func (c *Context) Provider() string {
	return c.facade.Name()
}

// Protocol returns the protocol the context was created for.
func (c *Context) Protocol() string {
	return c.stock.Protocol()
}

// Stock returns the unbound context.
func (c *Context) Stock() stack.Context {
	return c.stock
}

// SocketFactory returns a client socket factory bound to alias.
func (c *Context) SocketFactory(ctx context.Context, alias string) *SocketFactory {
	return WrapSocketFactory(ctx, c.stock.SocketFactory(), alias, c.resolver, c.opts...)
}

// ServerSocketFactory returns a server socket factory bound to alias.
func (c *Context) ServerSocketFactory(ctx context.Context, alias string) *ServerSocketFactory {
	return WrapServerSocketFactory(ctx, c.stock.ServerSocketFactory(), alias, c.resolver, c.opts...)
}

// NewEngine returns a client-mode engine for the peer, bound to alias.
func (c *Context) NewEngine(ctx context.Context, alias, host string, port int) *Engine {
	return WrapEngine(ctx, c.stock.NewEngine(host, port), alias, c.resolver, c.opts...)
}

// NewServerEngine returns a server-mode engine bound to the inbound configuration of alias.
func (c *Context) NewServerEngine(ctx context.Context, alias string) *Engine {
	stock := c.stock.NewEngine("", 0)
	stock.SetUseClientMode(false)
	return WrapEngine(ctx, stock, alias, c.resolver, c.opts...)
}

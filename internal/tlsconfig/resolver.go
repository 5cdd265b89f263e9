package tlsconfig

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/avatls/internal/observability"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Resolver turns an alias into a NamedConfig. It never fails: any store
// error degrades to the empty configuration.
type Resolver struct {
	store    Store
	defaults SecurityDefaults
	logger   observability.Logger
	metrics  avatls.MetricsRecorder
}

// Option is a functional option for configuring the Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for the resolver.
func WithLogger(logger observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the resolver.
func WithMetrics(metrics avatls.MetricsRecorder) Option {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// WithSecurityDefaults sets the process-wide fallback for the default lookup.
func WithSecurityDefaults(defaults SecurityDefaults) Option {
	return func(r *Resolver) {
		r.defaults = defaults
	}
}

// NewResolver creates a resolver over store. A nil store always yields the
// security defaults for the null alias and the empty configuration otherwise.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		defaults: EnvDefaults{},
		logger:   observability.NopLogger(),
		metrics:  avatls.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the outbound configuration for alias. An empty alias
// selects the process default.
func (r *Resolver) Lookup(ctx context.Context, alias string) NamedConfig {
	return r.lookup(ctx, alias, Outbound)
}

// LookupInbound returns the inbound configuration for alias, used by
// server-side wrappers.
func (r *Resolver) LookupInbound(ctx context.Context, alias string) NamedConfig {
	return r.lookup(ctx, alias, Inbound)
}

func (r *Resolver) lookup(ctx context.Context, alias string, dir Direction) NamedConfig {
	ctx, span := observability.StartSpan(ctx, "tlsconfig.Lookup",
		attribute.String("tls.alias", alias),
		attribute.String("tls.direction", dir.String()),
	)
	defer observability.EndSpan(span, nil)

	logger := r.logger.WithContext(observability.ContextWithAlias(ctx, alias)).
		With(observability.String("direction", dir.String()))

	var cfg NamedConfig
	if alias != "" {
		cfg = r.lookupAlias(ctx, logger, alias, dir)
	} else {
		cfg = r.lookupDefault(ctx, logger)
	}

	r.metrics.RecordConfigLookup(dir.String(), cfg.Source)
	span.SetAttributes(
		attribute.String("tls.config.source", cfg.Source),
		attribute.String("tls.security_level", cfg.SecurityLevel.String()),
	)
	logger.Debug("named configuration resolved",
		observability.String("source", cfg.Source),
		observability.Strings("cipher_suites", cfg.CipherSuites),
		observability.Strings("protocols", cfg.Protocols),
		observability.Bool("hostname_verification", cfg.HostnameVerification),
		observability.String("security_level", cfg.SecurityLevel.String()),
	)
	return cfg
}

func (r *Resolver) lookupAlias(ctx context.Context, logger observability.Logger, alias string, dir Direction) NamedConfig {
	if r.store == nil {
		return EmptyConfig(alias)
	}

	props, err := r.store.GetProperties(ctx, alias, dir)
	if err != nil {
		logger.Warn("config store lookup failed, using stack defaults", observability.Error(err))
		cfg := EmptyConfig(alias)
		cfg.Source = avatls.LookupError
		return cfg
	}
	if len(props) == 0 {
		logger.Debug("no configuration for alias, using stack defaults")
		return EmptyConfig(alias)
	}
	return r.parse(logger, alias, props, avatls.LookupStore)
}

func (r *Resolver) lookupDefault(ctx context.Context, logger observability.Logger) NamedConfig {
	if r.store != nil {
		props, err := r.store.GetDefaultProperties(ctx)
		switch {
		case err != nil:
			logger.Warn("default config lookup failed, using security defaults", observability.Error(err))
		case len(props) > 0:
			return r.parse(logger, "", props, avatls.LookupStore)
		}
	}

	if r.defaults != nil {
		if props := r.defaults.Properties(); len(props) > 0 {
			return r.parse(logger, "", props, avatls.LookupDefaults)
		}
	}
	return EmptyConfig("")
}

func (r *Resolver) parse(logger observability.Logger, alias string, props Properties, source string) NamedConfig {
	cfg, errs := Parse(alias, props, source)
	for _, err := range errs {
		logger.Warn("ignoring invalid configuration property", observability.Error(err))
	}
	return cfg
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avatls/internal/binding"
	"github.com/vyrodovalexey/avatls/internal/config"
	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/provider"
	"github.com/vyrodovalexey/avatls/internal/store"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// run resolves the provider, binds the alias and writes a report to out.
func run(ctx context.Context, flags cliFlags, cfg *config.Config, logger observability.Logger, out io.Writer) error {
	metrics := avatls.NewMetrics(cfg.Observability.Metrics.Namespace)
	if cfg.Observability.Metrics.Enabled {
		stopMetrics, err := serveMetrics(cfg.Observability.Metrics.Addr, metrics, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	registryOpts := []provider.Option{
		provider.WithLogger(logger),
		provider.WithMetrics(metrics),
		provider.WithValidationTimeout(cfg.Provider.ValidationTimeout.Duration()),
	}
	if len(cfg.Provider.KnownNames) > 0 {
		registryOpts = append(registryOpts, provider.WithKnownNames(cfg.Provider.KnownNames...))
	}
	registry := provider.Init(registryOpts...)

	facade, err := resolveProvider(ctx, registry, cfg.Provider, logger, metrics)
	if err != nil {
		return err
	}

	s, err := store.New(ctx, cfg.Store, store.WithLogger(logger), store.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to open configuration store: %w", err)
	}
	if s != nil {
		defer func() { _ = s.Close() }()
	}

	resolver := tlsconfig.NewResolver(s,
		tlsconfig.WithLogger(logger),
		tlsconfig.WithMetrics(metrics),
	)

	bctx, err := binding.NewContext(facade, flags.protocol, resolver,
		binding.WithLogger(logger),
		binding.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	if flags.list {
		writeProviders(out, registry)
	}

	factory := bctx.SocketFactory(ctx, flags.alias)
	writeBinding(out, facade, factory)

	if flags.addr == "" {
		return nil
	}
	return probe(ctx, factory, flags.addr, flags.timeout, out)
}

// resolveProvider resolves the configured provider. In FIPS mode the default
// provider is installed first so that compliance has a list to reorder, and
// the provider then at the top of the list is used unless one was named.
func resolveProvider(
	ctx context.Context,
	registry *provider.Registry,
	cfg config.ProviderConfig,
	logger observability.Logger,
	metrics avatls.MetricsRecorder,
) (*provider.Facade, error) {
	if !cfg.FIPS {
		return registry.Resolve(ctx, cfg.Name), nil
	}

	provider.ForceFIPS()
	registry.Resolve(ctx, "")

	compliance := provider.NewCompliance(registry,
		provider.WithComplianceLogger(logger),
		provider.WithComplianceMetrics(metrics),
	)
	if err := compliance.Enable(ctx); err != nil {
		return nil, fmt.Errorf("failed to enable compliance mode: %w", err)
	}

	name := cfg.Name
	if name == "" {
		if providers := registry.Providers(); len(providers) > 0 {
			name = providers[0].Name
		}
	}
	return registry.Resolve(ctx, name), nil
}

func writeProviders(out io.Writer, registry *provider.Registry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POSITION\tPROVIDER\tINFO")
	for _, d := range registry.Providers() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", d.Position, d.Name, d.Info)
	}
	_ = w.Flush()
	fmt.Fprintln(out)
}

func writeBinding(out io.Writer, facade *provider.Facade, factory *binding.SocketFactory) {
	cfg := factory.Config()
	outcome := facade.Outcome()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "provider\t%s\n", facade.Name())
	fmt.Fprintf(w, "validation\t%s\n", outcome.Status)
	if outcome.Err != nil {
		fmt.Fprintf(w, "validation error\t%v\n", outcome.Err)
	}
	fmt.Fprintf(w, "fallback\t%t\n", facade.Fallback())
	fmt.Fprintf(w, "fips\t%t\n", provider.FIPSRequired())
	fmt.Fprintf(w, "alias\t%s\n", displayAlias(cfg.Alias))
	fmt.Fprintf(w, "source\t%s\n", displayAlias(cfg.Source))
	fmt.Fprintf(w, "security level\t%s\n", cfg.SecurityLevel)
	fmt.Fprintf(w, "hostname verification\t%t\n", cfg.HostnameVerification)
	if len(cfg.Protocols) > 0 {
		fmt.Fprintf(w, "protocols\t%s\n", strings.Join(cfg.Protocols, ","))
	}
	fmt.Fprintf(w, "cipher suites\t%s\n", strings.Join(factory.DefaultCipherSuites(), ","))
	_ = w.Flush()
}

func displayAlias(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// probe connects to addr through factory and reports the negotiated session.
func probe(ctx context.Context, factory *binding.SocketFactory, addr string, timeout time.Duration, out io.Writer) (err error) {
	ctx, span := observability.StartSpan(ctx, "tlsprobe.Probe")
	defer func() { observability.EndSpan(span, err) }()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sock, err := factory.CreateSocket(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer func() { _ = sock.Close() }()

	start := time.Now()
	if err := sock.Handshake(ctx); err != nil {
		return fmt.Errorf("handshake with %s: %w", addr, err)
	}
	elapsed := time.Since(start)

	state := sock.ConnectionState()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "peer\t%s\n", addr)
	fmt.Fprintf(w, "protocol\t%s\n", avatls.ProtocolName(state.Version))
	fmt.Fprintf(w, "cipher suite\t%s\n", avatls.CipherSuiteName(state.CipherSuite))
	fmt.Fprintf(w, "handshake\t%s\n", elapsed.Round(time.Millisecond))
	host, _, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		host = addr
	}
	if chain := avatls.SummarizeChain(state.PeerCertificates, host, time.Now()); chain != nil {
		fmt.Fprintf(w, "subject\t%s\n", chain.Subject)
		fmt.Fprintf(w, "issuer\t%s\n", chain.Issuer)
		fmt.Fprintf(w, "fingerprint\t%s\n", chain.Fingerprint)
		fmt.Fprintf(w, "not after\t%s (%s)\n", chain.NotAfter.UTC().Format(time.RFC3339), chain.Expiration)
		fmt.Fprintf(w, "host match\t%t\n", chain.HostMatch)
		fmt.Fprintf(w, "self-signed\t%t\n", chain.SelfSigned)
		fmt.Fprintf(w, "chain\t%d certificates, %d intermediate, root included: %t\n",
			chain.ChainLength, chain.Intermediate, chain.HasRoot)
	}
	return w.Flush()
}

// serveMetrics exposes the registry on addr until the returned function is called.
func serveMetrics(addr string, metrics *avatls.Metrics, logger observability.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", observability.Error(err))
		}
	}()
	logger.Info("metrics server started", observability.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// Package main is the entry point for tlsprobe, which resolves a security
// provider, binds a named TLS configuration and reports what a connection
// made with it would negotiate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avatls/internal/config"
	"github.com/vyrodovalexey/avatls/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	provider    string
	alias       string
	addr        string
	protocol    string
	fips        bool
	list        bool
	timeout     time.Duration
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := observability.NewTracer(ctx, cfg.Observability.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracing", observability.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	if err := run(ctx, flags, cfg, logger, os.Stdout); err != nil {
		logger.Error("probe failed", observability.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer
	}
}

// parseFlags parses command line flags with environment fallbacks.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("tlsprobe", flag.ExitOnError)

	var f cliFlags
	fs.StringVar(&f.configPath, "config", getEnvOrDefault("AVATLS_CONFIG_PATH", ""),
		"Path to configuration file")
	fs.StringVar(&f.provider, "provider", getEnvOrDefault("AVATLS_PROVIDER", ""),
		"Security provider to resolve (empty selects the default)")
	fs.StringVar(&f.alias, "alias", getEnvOrDefault("AVATLS_ALIAS", ""),
		"Alias of the named TLS configuration to bind")
	fs.StringVar(&f.addr, "addr", "", "host:port to connect to; when empty only the configuration is reported")
	fs.StringVar(&f.protocol, "protocol", "TLS", "Protocol name passed to the provider")
	fs.BoolVar(&f.fips, "fips", getEnvBool("AVATLS_FIPS", false), "Enable FIPS compliance mode")
	fs.BoolVar(&f.list, "list", false, "List installed providers")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Second, "Connect and handshake timeout")
	fs.StringVar(&f.logLevel, "log-level", getEnvOrDefault("AVATLS_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", getEnvOrDefault("AVATLS_LOG_FORMAT", ""),
		"Log format (json, console)")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")
	_ = fs.Parse(args)

	return f
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("tlsprobe version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// loadConfig loads the configuration file, if any, and applies flag overrides.
func loadConfig(flags cliFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
	}

	if flags.provider != "" {
		cfg.Provider.Name = flags.provider
	}
	if flags.fips {
		cfg.Provider.FIPS = true
	}
	if flags.logLevel != "" {
		cfg.Observability.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Observability.Logging.Format = flags.logFormat
	}
	return cfg, nil
}

// initLogger initializes the logger.
func initLogger(cfg *config.Config) observability.Logger {
	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

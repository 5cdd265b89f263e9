// Package observability provides logging and tracing for avatls.
//
// Logging is structured via zap behind the Logger interface:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("provider resolved",
//	    observability.String("provider", "GoTLS"),
//	    observability.Bool("validated", true),
//	)
//
// Tracing uses OpenTelemetry. Library packages open spans with StartSpan on
// the global provider; the CLI installs an OTLP gRPC exporter via NewTracer.
package observability

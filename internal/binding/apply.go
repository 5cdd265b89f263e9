package binding

import (
	"slices"

	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/stack"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Apply sets the parameters cfg asks for on target. It never fails; an
// empty configuration leaves target untouched. It reports whether anything
// was changed.
//
// A configuration with hostname verification off clears endpoint
// identification on target, turning the check off even when the stack
// default had it on. The certificate chain is still verified.
func Apply(target stack.Configurable, cfg tlsconfig.NamedConfig) bool {
	return apply(target, cfg, observability.NopLogger())
}

func apply(target stack.Configurable, cfg tlsconfig.NamedConfig, logger observability.Logger) bool {
	if cfg.IsEmpty() {
		return false
	}

	p := target.Parameters()

	if cfg.HasCipherOverride() {
		if fixed := fixedSuites(cfg.CipherSuites); len(fixed) > 0 {
			logger.Warn("TLS 1.3 cipher suites cannot be configured, ignoring them",
				observability.Strings("ignored", fixed),
			)
		}
		supported := target.SupportedCipherSuites()
		if enabled := enabledCipherSuites(cfg, supported); len(enabled) > 0 {
			p.CipherSuites = enabled
		} else {
			logger.Warn("no configured cipher suite is supported, keeping stack defaults",
				observability.Strings("configured", cfg.CipherSuites),
			)
		}
	}

	if len(cfg.Protocols) > 0 {
		p.Protocols = slices.Clone(cfg.Protocols)
	}

	if cfg.HostnameVerification {
		p.EndpointIdentification = stack.EndpointIdentificationHTTPS
	} else {
		p.EndpointIdentification = ""
	}

	if cfg.ClientAuth != stack.ClientAuthNone {
		p.ClientAuth = cfg.ClientAuth
	}

	target.SetParameters(p)
	return true
}

// enabledCipherSuites keeps the configured suites the security level
// advertises, in configured order. When the level rules them all out the
// configured suites the stack supports are used instead. TLS 1.3 suites are
// left out since the stack always enables its own.
func enabledCipherSuites(cfg tlsconfig.NamedConfig, supported []string) []string {
	wanted := configurableSuites(cfg.CipherSuites)
	advertised := avatls.FilterByLevel(supported, cfg.SecurityLevel)
	if enabled := intersect(wanted, advertised); len(enabled) > 0 {
		return enabled
	}
	return intersect(wanted, supported)
}

func configurableSuites(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if suite, ok := avatls.GetCipherSuiteInfo(name); ok && suite.TLS13 {
			continue
		}
		out = append(out, name)
	}
	return out
}

func fixedSuites(names []string) []string {
	var out []string
	for _, name := range names {
		if suite, ok := avatls.GetCipherSuiteInfo(name); ok && suite.TLS13 {
			out = append(out, name)
		}
	}
	return out
}

func intersect(wanted, allowed []string) []string {
	var out []string
	for _, name := range wanted {
		if slices.Contains(allowed, name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

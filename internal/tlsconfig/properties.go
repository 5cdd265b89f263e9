package tlsconfig

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avatls/internal/stack"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Property keys understood by the resolver.
const (
	PropertyCipherSuites         = "cipher-suites"
	PropertyProtocol             = "protocol"
	PropertyHostnameVerification = "hostname-verification"
	PropertySecurityLevel        = "security-level"
	PropertyClientAuth           = "client-auth"
)

// Environment variables read by EnvDefaults.
const (
	EnvCipherSuites  = "AVATLS_CIPHER_SUITES"
	EnvProtocol      = "AVATLS_PROTOCOL"
	EnvSecurityLevel = "AVATLS_SECURITY_LEVEL"
)

// Direction tells the store which side of a connection a lookup is for.
type Direction int

// Connection directions.
const (
	Outbound Direction = iota
	Inbound
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// ParseDirection parses outbound or inbound.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "outbound":
		return Outbound, true
	case "inbound":
		return Inbound, true
	default:
		return Outbound, false
	}
}

// Properties is the property bag a store holds for an alias.
type Properties map[string]string

// Clone returns a copy of p.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Store maps aliases to property bags. A nil bag with a nil error means the
// store has nothing for the request.
type Store interface {
	GetProperties(ctx context.Context, alias string, dir Direction) (Properties, error)
	GetDefaultProperties(ctx context.Context) (Properties, error)
}

// SecurityDefaults supplies the process-wide fallback settings used when the
// store has no default bag.
type SecurityDefaults interface {
	Properties() Properties
}

// EnvDefaults reads the process security defaults from the environment.
type EnvDefaults struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Properties returns the bag built from AVATLS_* variables; nil when none are set.
func (d EnvDefaults) Properties() Properties {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	props := Properties{}
	for key, env := range map[string]string{
		PropertyCipherSuites:  EnvCipherSuites,
		PropertyProtocol:      EnvProtocol,
		PropertySecurityLevel: EnvSecurityLevel,
	} {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			props[key] = v
		}
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

// NamedConfig is the resolved parameter set for one alias.
type NamedConfig struct {
	// Alias is empty for the process default.
	Alias string

	// CipherSuites are the configured suite names; nil keeps the stack defaults.
	CipherSuites []string

	// Protocol is the configured protocol string as written.
	Protocol string

	// Protocols is Protocol resolved to canonical names, newest first.
	Protocols []string

	HostnameVerification bool
	SecurityLevel        avatls.SecurityLevel
	ClientAuth           stack.ClientAuth

	// Source is where the configuration came from: store, defaults, empty or error.
	Source string
}

// EmptyConfig returns the configuration used when no source has anything.
// Applying it changes nothing.
func EmptyConfig(alias string) NamedConfig {
	return NamedConfig{
		Alias:                alias,
		HostnameVerification: true,
		SecurityLevel:        avatls.DefaultSecurityLevel,
		Source:               avatls.LookupEmpty,
	}
}

// IsEmpty reports whether no source supplied the configuration.
func (c NamedConfig) IsEmpty() bool {
	switch c.Source {
	case "", avatls.LookupEmpty, avatls.LookupError:
		return true
	default:
		return false
	}
}

// HasCipherOverride reports whether cipher suites were configured.
func (c NamedConfig) HasCipherOverride() bool {
	return len(c.CipherSuites) > 0
}

// Parse builds a NamedConfig from a property bag. Invalid values are
// reported in the returned errors and left at their defaults, so the
// configuration is always usable.
func Parse(alias string, props Properties, source string) (NamedConfig, []error) {
	cfg := EmptyConfig(alias)
	cfg.Source = source

	var errs []error

	if v, ok := props[PropertyCipherSuites]; ok {
		cfg.CipherSuites = avatls.SplitList(v)
	}

	if v, ok := props[PropertyProtocol]; ok {
		protocols, err := avatls.ResolveProtocols(v)
		if err != nil {
			errs = append(errs, avatls.NewConfigurationErrorWithCause(PropertyProtocol, v, err))
		} else {
			cfg.Protocol = strings.TrimSpace(v)
			cfg.Protocols = protocols
		}
	}

	if v, ok := props[PropertyHostnameVerification]; ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, avatls.NewConfigurationErrorWithCause(PropertyHostnameVerification, v, err))
		} else {
			cfg.HostnameVerification = b
		}
	}

	if v, ok := props[PropertySecurityLevel]; ok && strings.TrimSpace(v) != "" {
		level, valid := avatls.ParseSecurityLevel(v)
		if !valid {
			errs = append(errs, avatls.NewConfigurationError(PropertySecurityLevel,
				fmt.Sprintf("unknown security level %q", v)))
		}
		cfg.SecurityLevel = level
	}

	if v, ok := props[PropertyClientAuth]; ok {
		auth, valid := stack.ParseClientAuth(strings.ToLower(strings.TrimSpace(v)))
		if !valid {
			errs = append(errs, avatls.NewConfigurationError(PropertyClientAuth,
				fmt.Sprintf("unknown client auth mode %q", v)))
		}
		cfg.ClientAuth = auth
	}

	return cfg, errs
}

package tls

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strings"
)

// Protocol names as they appear in configuration and Parameters.
const (
	ProtocolTLS10 = "TLSv1"
	ProtocolTLS11 = "TLSv1.1"
	ProtocolTLS12 = "TLSv1.2"
	ProtocolTLS13 = "TLSv1.3"
)

var protocolVersions = map[string]uint16{
	ProtocolTLS10: tls.VersionTLS10,
	ProtocolTLS11: tls.VersionTLS11,
	ProtocolTLS12: tls.VersionTLS12,
	ProtocolTLS13: tls.VersionTLS13,
}

// protocolAliases maps accepted spellings to canonical protocol names.
var protocolAliases = map[string][]string{
	"TLS":      {ProtocolTLS13, ProtocolTLS12},
	"TLSV1.2+": {ProtocolTLS13, ProtocolTLS12},
	"TLSV1":    {ProtocolTLS10},
	"TLSV1.0":  {ProtocolTLS10},
	"TLS10":    {ProtocolTLS10},
	"TLSV1.1":  {ProtocolTLS11},
	"TLS11":    {ProtocolTLS11},
	"TLSV1.2":  {ProtocolTLS12},
	"TLS12":    {ProtocolTLS12},
	"TLSV1.3":  {ProtocolTLS13},
	"TLS13":    {ProtocolTLS13},
}

// SupportedProtocols returns every protocol the stock stack implements, newest first.
func SupportedProtocols() []string {
	return []string{ProtocolTLS13, ProtocolTLS12, ProtocolTLS11, ProtocolTLS10}
}

// DefaultProtocols returns the protocols enabled when nothing is configured.
func DefaultProtocols() []string {
	return []string{ProtocolTLS13, ProtocolTLS12}
}

// ProtocolVersion returns the crypto/tls version for a canonical protocol name.
func ProtocolVersion(name string) (uint16, bool) {
	v, ok := protocolVersions[name]
	return v, ok
}

// ProtocolName returns the canonical name of a crypto/tls version.
func ProtocolName(version uint16) string {
	for name, v := range protocolVersions {
		if v == version {
			return name
		}
	}
	return fmt.Sprintf("0x%04X", version)
}

// ResolveProtocols turns a configured protocol string into an ordered,
// de-duplicated list of canonical protocol names, newest first.
//
// An empty string resolves to nil, meaning "keep the stack defaults". "TLS"
// resolves to the modern set. Single version names resolve to exactly that
// version, and lists may be comma or whitespace separated.
func ResolveProtocols(value string) ([]string, error) {
	tokens := SplitList(value)
	if len(tokens) == 0 {
		return nil, nil
	}

	var resolved []string
	for _, token := range tokens {
		names, ok := protocolAliases[strings.ToUpper(token)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, token)
		}
		for _, name := range names {
			if !slices.Contains(resolved, name) {
				resolved = append(resolved, name)
			}
		}
	}

	slices.SortFunc(resolved, func(a, b string) int {
		return int(protocolVersions[b]) - int(protocolVersions[a])
	})
	return resolved, nil
}

// VersionRange returns the lowest and highest crypto/tls versions named in
// protocols. Unknown names are ignored; zeros mean "no constraint".
func VersionRange(protocols []string) (minVersion, maxVersion uint16) {
	for _, name := range protocols {
		v, ok := protocolVersions[name]
		if !ok {
			continue
		}
		if minVersion == 0 || v < minVersion {
			minVersion = v
		}
		if v > maxVersion {
			maxVersion = v
		}
	}
	return minVersion, maxVersion
}

// ProtocolsInRange lists the canonical protocols between two versions, newest first.
func ProtocolsInRange(minVersion, maxVersion uint16) []string {
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	if maxVersion == 0 {
		maxVersion = tls.VersionTLS13
	}
	var protocols []string
	for _, name := range SupportedProtocols() {
		v := protocolVersions[name]
		if v >= minVersion && v <= maxVersion {
			protocols = append(protocols, name)
		}
	}
	return protocols
}

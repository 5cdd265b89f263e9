package tls

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strings"
)

// SecurityLevel is a coarse policy knob that narrows the cipher suites a
// connection may advertise.
type SecurityLevel int

// Security level constants, ordered from most to least permissive.
const (
	// SecurityLevelLow permits every suite the stack supports.
	SecurityLevelLow SecurityLevel = iota

	// SecurityLevelMedium drops suites the stack flags as insecure.
	SecurityLevelMedium

	// SecurityLevelHigh keeps only forward-secret AEAD suites.
	SecurityLevelHigh
)

// DefaultSecurityLevel is used when a configuration does not name a level.
const DefaultSecurityLevel = SecurityLevelHigh

// String returns the string representation of the security level.
func (l SecurityLevel) String() string {
	switch l {
	case SecurityLevelLow:
		return "LOW"
	case SecurityLevelMedium:
		return "MEDIUM"
	case SecurityLevelHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParseSecurityLevel parses LOW, MEDIUM or HIGH, case-insensitively.
func ParseSecurityLevel(s string) (SecurityLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SecurityLevelLow, true
	case "MEDIUM":
		return SecurityLevelMedium, true
	case "HIGH":
		return SecurityLevelHigh, true
	default:
		return DefaultSecurityLevel, false
	}
}

// CipherSuite represents a TLS cipher suite with metadata.
type CipherSuite struct {
	// ID is the cipher suite ID.
	ID uint16

	// Name is the IANA cipher suite name.
	Name string

	// Secure is false for suites crypto/tls lists as insecure.
	Secure bool

	// FIPS indicates if this cipher suite is FIPS-approved.
	FIPS bool

	// TLS13 indicates if this is a TLS 1.3 cipher suite.
	TLS13 bool

	// Level is the highest security level that still permits the suite.
	Level SecurityLevel
}

var (
	cipherSuiteRegistry = map[string]CipherSuite{}
	cipherSuiteByID     = map[uint16]CipherSuite{}

	// supportedCipherSuiteNames keeps crypto/tls ordering: secure suites
	// first, then the insecure ones.
	supportedCipherSuiteNames []string
	defaultCipherSuiteNames   []string
)

func init() {
	for _, cs := range tls.CipherSuites() {
		register(cs, true)
		defaultCipherSuiteNames = append(defaultCipherSuiteNames, cs.Name)
	}
	for _, cs := range tls.InsecureCipherSuites() {
		register(cs, false)
	}
}

func register(cs *tls.CipherSuite, secure bool) {
	tls13 := slices.Equal(cs.SupportedVersions, []uint16{tls.VersionTLS13})
	suite := CipherSuite{
		ID:     cs.ID,
		Name:   cs.Name,
		Secure: secure,
		FIPS:   strings.Contains(cs.Name, "_AES_") && !strings.Contains(cs.Name, "CBC_SHA"),
		TLS13:  tls13,
		Level:  classify(cs.Name, secure, tls13),
	}
	cipherSuiteRegistry[suite.Name] = suite
	cipherSuiteByID[suite.ID] = suite
	supportedCipherSuiteNames = append(supportedCipherSuiteNames, suite.Name)
}

func classify(name string, secure, tls13 bool) SecurityLevel {
	switch {
	case !secure:
		return SecurityLevelLow
	case tls13:
		return SecurityLevelHigh
	case strings.HasPrefix(name, "TLS_ECDHE_") &&
		(strings.Contains(name, "_GCM_") || strings.Contains(name, "CHACHA20")):
		return SecurityLevelHigh
	default:
		return SecurityLevelMedium
	}
}

// SupportedCipherSuiteNames returns every suite name crypto/tls implements.
func SupportedCipherSuiteNames() []string {
	return slices.Clone(supportedCipherSuiteNames)
}

// DefaultCipherSuiteNames returns the names crypto/tls considers secure.
func DefaultCipherSuiteNames() []string {
	return slices.Clone(defaultCipherSuiteNames)
}

// FIPSCipherSuiteNames returns the FIPS-approved subset of the secure suites.
func FIPSCipherSuiteNames() []string {
	names := make([]string, 0, len(defaultCipherSuiteNames))
	for _, name := range defaultCipherSuiteNames {
		if cipherSuiteRegistry[name].FIPS {
			names = append(names, name)
		}
	}
	return names
}

// FIPSCurvePreferences returns FIPS-approved curve preferences.
func FIPSCurvePreferences() []tls.CurveID {
	return []tls.CurveID{
		tls.CurveP256,
		tls.CurveP384,
		tls.CurveP521,
	}
}

// GetCipherSuiteInfo returns information about a cipher suite by name.
func GetCipherSuiteInfo(name string) (CipherSuite, bool) {
	suite, ok := cipherSuiteRegistry[strings.TrimSpace(name)]
	return suite, ok
}

// GetCipherSuiteByID returns information about a cipher suite by ID.
func GetCipherSuiteByID(id uint16) (CipherSuite, bool) {
	suite, ok := cipherSuiteByID[id]
	return suite, ok
}

// CipherSuiteName returns the name of a cipher suite by ID.
func CipherSuiteName(id uint16) string {
	if suite, ok := cipherSuiteByID[id]; ok {
		return suite.Name
	}
	return fmt.Sprintf("0x%04X", id)
}

// LevelOf returns the security level of a suite. Unknown names rank LOW.
func LevelOf(name string) SecurityLevel {
	if suite, ok := cipherSuiteRegistry[name]; ok {
		return suite.Level
	}
	return SecurityLevelLow
}

// FilterByLevel keeps the suites permitted at level, preserving order.
//
// The result is never empty for a non-empty input: when nothing survives at
// level the next lower level is tried, and LOW permits everything. Because
// of that fall-through the filtered sets stay nested, HIGH within MEDIUM
// within LOW, for any fixed input.
func FilterByLevel(names []string, level SecurityLevel) []string {
	for l := level; l > SecurityLevelLow; l-- {
		filtered := make([]string, 0, len(names))
		for _, name := range names {
			if LevelOf(name) >= l {
				filtered = append(filtered, name)
			}
		}
		if len(filtered) > 0 {
			return filtered
		}
	}
	return slices.Clone(names)
}

// ParseCipherSuites maps suite names to IDs. TLS 1.3 suites are skipped
// because crypto/tls does not allow configuring them.
func ParseCipherSuites(names []string) ([]uint16, error) {
	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		suite, ok := cipherSuiteRegistry[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCipherSuiteInvalid, name)
		}
		if suite.TLS13 {
			continue
		}
		suites = append(suites, suite.ID)
	}
	return suites, nil
}

// CipherSuiteNames maps IDs back to names.
func CipherSuiteNames(ids []uint16) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, CipherSuiteName(id))
	}
	return names
}

// SplitList splits a whitespace- or comma-separated list, dropping blanks.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

package provider

import (
	"crypto/tls"
	"fmt"
	"sort"
	"sync"

	"github.com/vyrodovalexey/avatls/internal/stack"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// Built-in provider names.
const (
	// NameGoTLS is the stock crypto/tls provider and the hardcoded fallback.
	NameGoTLS = "GoTLS"

	// NameGoFIPS is the compliance-mode provider.
	NameGoFIPS = "GoFIPS"

	// NameBase is the baseline crypto provider used as the compliance anchor.
	NameBase = "Base"
)

// Provider is a named TLS implementation.
type Provider interface {
	// Name returns the provider name. Names compare case-insensitively.
	Name() string

	// Info returns a short human readable description.
	Info() string

	// NewContext returns a TLS context for a protocol name such as "TLS" or "TLSv1.2".
	NewContext(protocol string) (stack.Context, error)
}

// Descriptor is a point-in-time view of an installed provider.
type Descriptor struct {
	Name     string
	Info     string
	Position int
}

// Constructor creates a provider instance by name.
type Constructor func() (Provider, error)

var (
	constructorsMu sync.RWMutex
	constructors   = map[string]namedConstructor{}
)

type namedConstructor struct {
	name string
	ctor Constructor
}

func init() {
	RegisterConstructor(NameGoTLS, func() (Provider, error) { return NewGoTLS(), nil })
	RegisterConstructor(NameGoFIPS, func() (Provider, error) { return NewGoFIPS(), nil })
	RegisterConstructor(NameBase, func() (Provider, error) { return NewBase(), nil })
}

// RegisterConstructor makes a provider constructor available by name. It
// panics if ctor is nil or a constructor is already registered for name.
func RegisterConstructor(name string, ctor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	if ctor == nil {
		panic("provider: RegisterConstructor constructor is nil")
	}
	key := foldName(name)
	if _, dup := constructors[key]; dup {
		panic("provider: RegisterConstructor called twice for " + name)
	}
	constructors[key] = namedConstructor{name: name, ctor: ctor}
}

// Constructors returns the names with a registered constructor, sorted.
func Constructors() []string {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	names := make([]string, 0, len(constructors))
	for _, c := range constructors {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

func lookupConstructor(name string) (Constructor, bool) {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	c, ok := constructors[foldName(name)]
	return c.ctor, ok
}

// goTLS is the stock crypto/tls provider. Once FIPS is required its
// contexts only offer FIPS-approved suites and curves.
type goTLS struct {
	name string
	fips bool
}

// NewGoTLS returns the stock crypto/tls provider.
func NewGoTLS() Provider {
	return &goTLS{name: NameGoTLS}
}

// NewGoFIPS returns the provider that always restricts contexts to
// FIPS-approved settings.
func NewGoFIPS() Provider {
	return &goTLS{name: NameGoFIPS, fips: true}
}

func (p *goTLS) Name() string { return p.name }

func (p *goTLS) Info() string {
	if p.fips {
		return "crypto/tls restricted to FIPS-approved suites and curves"
	}
	return "crypto/tls"
}

func (p *goTLS) NewContext(protocol string) (stack.Context, error) {
	base := &tls.Config{MinVersion: tls.VersionTLS12}
	if !p.fips && !FIPSRequired() {
		return stack.NewContext(protocol, base)
	}

	base.CurvePreferences = avatls.FIPSCurvePreferences()
	suites := avatls.FIPSCipherSuiteNames()
	ids, err := avatls.ParseCipherSuites(suites)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	base.CipherSuites = ids
	return stack.NewContext(protocol, base, stack.WithSupportedCipherSuites(suites))
}

// base is a crypto-only provider. It anchors the provider list in
// compliance mode and cannot produce TLS contexts.
type base struct{}

// NewBase returns the baseline crypto provider.
func NewBase() Provider {
	return base{}
}

func (base) Name() string { return NameBase }

func (base) Info() string { return "baseline crypto primitives" }

func (base) NewContext(string) (stack.Context, error) {
	return nil, fmt.Errorf("%s: %w", NameBase, ErrNoTLS)
}

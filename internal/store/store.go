package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/vyrodovalexey/avatls/internal/config"
	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

// ErrUnknownStore is returned by New for an unsupported store type.
var ErrUnknownStore = errors.New("unknown store type")

// Store is a tlsconfig.Store that holds resources.
type Store interface {
	tlsconfig.Store
	io.Closer
}

// Option is a functional option shared by every store.
type Option func(*options)

type options struct {
	logger   observability.Logger
	metrics  avatls.MetricsRecorder
	debounce time.Duration
	onReload func(error)
}

// WithLogger sets the logger for the store.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the store.
func WithMetrics(metrics avatls.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   observability.NopLogger(),
		metrics:  avatls.NewNopMetrics(),
		debounce: config.DefaultDebounceDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Entry is what a store holds for one alias. Properties apply to both
// directions; Outbound and Inbound override them per direction.
type Entry struct {
	Properties tlsconfig.Properties `yaml:"properties,omitempty"`
	Outbound   tlsconfig.Properties `yaml:"outbound,omitempty"`
	Inbound    tlsconfig.Properties `yaml:"inbound,omitempty"`
}

// Resolve returns the bag for dir, or nil when the entry has nothing for it.
func (e Entry) Resolve(dir tlsconfig.Direction) tlsconfig.Properties {
	override := e.Outbound
	if dir == tlsconfig.Inbound {
		override = e.Inbound
	}
	if len(e.Properties) == 0 && len(override) == 0 {
		return nil
	}

	merged := make(tlsconfig.Properties, len(e.Properties)+len(override))
	maps.Copy(merged, e.Properties)
	maps.Copy(merged, override)
	return merged
}

// Document is the serialized form of a set of named configurations.
type Document struct {
	Default tlsconfig.Properties `yaml:"default,omitempty"`
	Aliases map[string]Entry     `yaml:"aliases,omitempty"`
}

// Static is an in-memory store. The zero value is empty and ready to use.
type Static struct {
	mu  sync.RWMutex
	doc Document
}

// NewStatic returns a store serving doc.
func NewStatic(doc Document) *Static {
	s := &Static{}
	s.Replace(doc)
	return s
}

// Replace swaps the served document.
func (s *Static) Replace(doc Document) {
	aliases := make(map[string]Entry, len(doc.Aliases))
	for name, e := range doc.Aliases {
		aliases[name] = Entry{
			Properties: e.Properties.Clone(),
			Outbound:   e.Outbound.Clone(),
			Inbound:    e.Inbound.Clone(),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = Document{Default: doc.Default.Clone(), Aliases: aliases}
}

// Set stores e under alias.
func (s *Static) Set(alias string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Aliases == nil {
		s.doc.Aliases = make(map[string]Entry)
	}
	s.doc.Aliases[alias] = e
}

// SetDefault replaces the default bag.
func (s *Static) SetDefault(p tlsconfig.Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Default = p.Clone()
}

// GetProperties returns the bag for alias and dir.
func (s *Static) GetProperties(_ context.Context, alias string, dir tlsconfig.Direction) (tlsconfig.Properties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.doc.Aliases[alias]
	if !ok {
		return nil, nil
	}
	return e.Resolve(dir), nil
}

// GetDefaultProperties returns the default bag.
func (s *Static) GetDefaultProperties(_ context.Context) (tlsconfig.Properties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Default.Clone(), nil
}

// Close is a no-op.
func (s *Static) Close() error {
	return nil
}

// New builds the store described by cfg, wrapped in a cache when one is
// configured. A none store yields nil, which the resolver treats as empty.
func New(ctx context.Context, cfg config.StoreConfig, opts ...Option) (Store, error) {
	var (
		s   Store
		err error
	)

	switch strings.ToLower(cfg.Type) {
	case config.StoreTypeNone, "":
		return nil, nil
	case config.StoreTypeFile:
		if cfg.File == nil {
			return nil, fmt.Errorf("%w: file store without file settings", config.ErrInvalidConfig)
		}
		fs, ferr := NewFileStore(cfg.File.Path, append(opts, WithDebounceDelay(cfg.File.DebounceDelay.Duration()))...)
		if ferr != nil {
			return nil, ferr
		}
		if cfg.File.Watch {
			if werr := fs.Watch(ctx); werr != nil {
				_ = fs.Close()
				return nil, werr
			}
		}
		s = fs
	case config.StoreTypeVault:
		if cfg.Vault == nil {
			return nil, fmt.Errorf("%w: vault store without vault settings", config.ErrInvalidConfig)
		}
		s, err = NewVaultStore(*cfg.Vault, opts...)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Type)
	}

	if cfg.Cache == nil {
		return s, nil
	}

	var cache Cache
	switch strings.ToLower(cfg.Cache.Type) {
	case config.CacheTypeNone:
		return s, nil
	case config.CacheTypeRedis:
		if cfg.Cache.Redis == nil {
			_ = s.Close()
			return nil, fmt.Errorf("%w: redis cache without redis settings", config.ErrInvalidConfig)
		}
		cache, err = NewRedisCache(cfg.Cache.Redis.URL, cfg.Cache.Redis.KeyPrefix, opts...)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	default:
		cache = NewMemoryCache()
	}

	return NewCachedStore(s, cache, cfg.Cache.TTL.Duration(), opts...), nil
}

var (
	_ Store = (*Static)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*VaultStore)(nil)
	_ Store = (*CachedStore)(nil)
)

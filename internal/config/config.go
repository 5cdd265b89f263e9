package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/avatls/internal/observability"
)

// Store types.
const (
	StoreTypeNone  = "none"
	StoreTypeFile  = "file"
	StoreTypeVault = "vault"
)

// Cache types.
const (
	CacheTypeNone   = "none"
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Default values.
const (
	DefaultValidationTimeout = 5 * time.Second
	DefaultDebounceDelay     = 100 * time.Millisecond
	DefaultVaultMount        = "secret"
	DefaultVaultPrefix       = "tls"
	DefaultVaultTimeout      = 10 * time.Second
	DefaultCacheTTL          = time.Minute
	DefaultRedisKeyPrefix    = "avatls:"
	DefaultMetricsNamespace  = "avatls"
	DefaultMetricsAddr       = ":9090"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the process configuration.
type Config struct {
	Provider      ProviderConfig      `yaml:"provider"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ProviderConfig selects and validates the security provider.
type ProviderConfig struct {
	// Name is the provider to resolve; empty selects the registry default.
	Name              string   `yaml:"name,omitempty"`
	FIPS              bool     `yaml:"fips,omitempty"`
	ValidationTimeout Duration `yaml:"validationTimeout,omitempty"`
	KnownNames        []string `yaml:"knownNames,omitempty"`
}

// StoreConfig selects the external configuration store.
type StoreConfig struct {
	Type  string           `yaml:"type,omitempty"`
	File  *FileStoreConfig `yaml:"file,omitempty"`
	Vault *VaultConfig     `yaml:"vault,omitempty"`
	Cache *CacheConfig     `yaml:"cache,omitempty"`
}

// FileStoreConfig configures the YAML file store.
type FileStoreConfig struct {
	Path          string   `yaml:"path"`
	Watch         bool     `yaml:"watch,omitempty"`
	DebounceDelay Duration `yaml:"debounceDelay,omitempty"`
}

// VaultConfig configures the Vault KV v2 store.
type VaultConfig struct {
	Address   string   `yaml:"address"`
	Token     string   `yaml:"token,omitempty"`
	Namespace string   `yaml:"namespace,omitempty"`
	Mount     string   `yaml:"mount,omitempty"`
	Prefix    string   `yaml:"prefix,omitempty"`
	Timeout   Duration `yaml:"timeout,omitempty"`

	// Breaker settings.
	MaxFailures uint32   `yaml:"maxFailures,omitempty"`
	OpenTimeout Duration `yaml:"openTimeout,omitempty"`
}

// CacheConfig configures the caching decorator in front of the store.
type CacheConfig struct {
	Type  string       `yaml:"type,omitempty"`
	TTL   Duration     `yaml:"ttl,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis cache.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging observability.LogConfig    `yaml:"logging"`
	Metrics MetricsConfig              `yaml:"metrics"`
	Tracing observability.TracerConfig `yaml:"tracing"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
	Addr      string `yaml:"addr,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider.ValidationTimeout == 0 {
		c.Provider.ValidationTimeout = Duration(DefaultValidationTimeout)
	}

	if c.Store.Type == "" {
		c.Store.Type = StoreTypeNone
	}
	if f := c.Store.File; f != nil && f.DebounceDelay == 0 {
		f.DebounceDelay = Duration(DefaultDebounceDelay)
	}
	if v := c.Store.Vault; v != nil {
		if v.Mount == "" {
			v.Mount = DefaultVaultMount
		}
		if v.Prefix == "" {
			v.Prefix = DefaultVaultPrefix
		}
		if v.Timeout == 0 {
			v.Timeout = Duration(DefaultVaultTimeout)
		}
	}
	if cc := c.Store.Cache; cc != nil {
		if cc.Type == "" {
			cc.Type = CacheTypeMemory
		}
		if cc.TTL == 0 {
			cc.TTL = Duration(DefaultCacheTTL)
		}
		if cc.Redis != nil && cc.Redis.KeyPrefix == "" {
			cc.Redis.KeyPrefix = DefaultRedisKeyPrefix
		}
	}

	logDefaults := observability.DefaultLogConfig()
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = logDefaults.Level
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = logDefaults.Format
	}
	if c.Observability.Logging.Output == "" {
		c.Observability.Logging.Output = logDefaults.Output
	}
	if c.Observability.Metrics.Namespace == "" {
		c.Observability.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Observability.Metrics.Addr == "" {
		c.Observability.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Store.Type) {
	case StoreTypeNone, "":
	case StoreTypeFile:
		if c.Store.File == nil || c.Store.File.Path == "" {
			errs = append(errs, fmt.Errorf("%w: store.file.path is required", ErrInvalidConfig))
		}
	case StoreTypeVault:
		if c.Store.Vault == nil || c.Store.Vault.Address == "" {
			errs = append(errs, fmt.Errorf("%w: store.vault.address is required", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type))
	}

	if cc := c.Store.Cache; cc != nil {
		switch strings.ToLower(cc.Type) {
		case CacheTypeNone, CacheTypeMemory, "":
		case CacheTypeRedis:
			if cc.Redis == nil || cc.Redis.URL == "" {
				errs = append(errs, fmt.Errorf("%w: store.cache.redis.url is required", ErrInvalidConfig))
			}
		default:
			errs = append(errs, fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, cc.Type))
		}
		if cc.TTL < 0 {
			errs = append(errs, fmt.Errorf("%w: store.cache.ttl must not be negative", ErrInvalidConfig))
		}
	}

	if c.Provider.ValidationTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: provider.validationTimeout must not be negative", ErrInvalidConfig))
	}

	rate := c.Observability.Tracing.SamplingRate
	if rate < 0 || rate > 1 {
		errs = append(errs, fmt.Errorf("%w: observability.tracing.samplingRate must be in [0, 1]", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/avatls/internal/config"
	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

const (
	vaultStoreName = "vault"

	// DefaultSecretName is the secret holding the default bag.
	DefaultSecretName = "default"

	defaultMaxFailures = 5
	defaultOpenTimeout = 30 * time.Second
)

// VaultStore reads named configurations from a Vault KV v2 engine. The
// secret for an alias lives at <mount>/data/<prefix>/<alias>; an
// <alias>-inbound secret, when present, is used for inbound lookups.
// Every read goes through a circuit breaker.
type VaultStore struct {
	client  *vaultapi.Client
	mount   string
	prefix  string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	opts    options
}

// NewVaultStore creates a Vault store from cfg.
func NewVaultStore(cfg config.VaultConfig, opts ...Option) (*VaultStore, error) {
	o := newOptions(opts)

	apiConfig := vaultapi.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("vault config: %w", apiConfig.Error)
	}
	apiConfig.Address = cfg.Address
	apiConfig.MaxRetries = 0
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout.Duration()
	}

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = config.DefaultVaultMount
	}

	s := &VaultStore{
		client:  client,
		mount:   strings.Trim(mount, "/"),
		prefix:  strings.Trim(cfg.Prefix, "/"),
		timeout: cfg.Timeout.Duration(),
		opts:    o,
	}
	s.cb = newBreaker("vault:"+cfg.Address, cfg.MaxFailures, cfg.OpenTimeout.Duration(), o.logger)
	return s, nil
}

func newBreaker(name string, maxFailures uint32, openTimeout time.Duration, logger observability.Logger) *gobreaker.CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
}

// BreakerState returns the circuit breaker state.
func (s *VaultStore) BreakerState() gobreaker.State {
	return s.cb.State()
}

// secretPath returns the KV v2 data path for name.
func (s *VaultStore) secretPath(name string) string {
	parts := []string{s.mount, "data"}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	return strings.Join(append(parts, name), "/")
}

// GetProperties reads the bag for alias. Inbound lookups prefer the
// <alias>-inbound secret and fall back to the shared one.
func (s *VaultStore) GetProperties(ctx context.Context, alias string, dir tlsconfig.Direction) (tlsconfig.Properties, error) {
	if alias == "" {
		return nil, nil
	}
	if dir == tlsconfig.Inbound {
		p, err := s.read(ctx, alias+"-"+dir.String())
		if err != nil || p != nil {
			return p, err
		}
	}
	return s.read(ctx, alias)
}

// GetDefaultProperties reads the default bag.
func (s *VaultStore) GetDefaultProperties(ctx context.Context) (tlsconfig.Properties, error) {
	return s.read(ctx, DefaultSecretName)
}

func (s *VaultStore) read(ctx context.Context, name string) (props tlsconfig.Properties, err error) {
	path := s.secretPath(name)
	ctx, span := observability.StartSpan(ctx, "store.vault.Read",
		attribute.String("vault.path", path),
	)
	defer func() { observability.EndSpan(span, err) }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.cb.Execute(func() (interface{}, error) {
		secret, rerr := s.client.Logical().ReadWithContext(ctx, path)
		if rerr != nil {
			return nil, rerr
		}
		return secretProperties(secret), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.opts.metrics.RecordStoreOperation(vaultStoreName, avatls.StoreOpen)
		} else {
			s.opts.metrics.RecordStoreOperation(vaultStoreName, avatls.StoreError)
		}
		s.opts.logger.Warn("vault read failed",
			observability.String("path", path),
			observability.Error(err),
		)
		return nil, fmt.Errorf("vault read %s: %w", path, err)
	}

	props, _ = result.(tlsconfig.Properties)
	if props == nil {
		s.opts.metrics.RecordStoreOperation(vaultStoreName, avatls.StoreMiss)
	} else {
		s.opts.metrics.RecordStoreOperation(vaultStoreName, avatls.StoreHit)
	}
	return props, nil
}

// secretProperties extracts the KV v2 data map. Missing and soft-deleted
// secrets yield nil.
func secretProperties(secret *vaultapi.Secret) tlsconfig.Properties {
	if secret == nil || secret.Data == nil {
		return nil
	}
	raw, ok := secret.Data["data"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}

	props := make(tlsconfig.Properties, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		props[k] = fmt.Sprint(v)
	}
	return props
}

// Close is a no-op; the Vault client holds no persistent connections that
// need explicit release.
func (s *VaultStore) Close() error {
	return nil
}

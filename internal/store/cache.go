package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

const cacheStoreName = "cache"

// ErrCacheMiss indicates that the key was not found in the cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte cache behind CachedStore.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; a TTL of 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Close() error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryCache is a mutex-guarded map with lazy expiry.
type memoryCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryCache returns an in-process cache.
func NewMemoryCache() Cache {
	return &memoryCache{
		items: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.items, key)
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = e
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *memoryCache) Close() error {
	return nil
}

// redisCache stores entries in Redis under a key prefix.
type redisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache connects to the Redis server at url and verifies it with a PING.
func NewRedisCache(url, keyPrefix string, opts ...Option) (Cache, error) {
	o := newOptions(opts)

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	o.logger.Info("redis cache initialized",
		observability.String("addr", redisOpts.Addr),
		observability.String("keyPrefix", keyPrefix),
	)
	return &redisCache{client: client, keyPrefix: keyPrefix}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.keyPrefix+key).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

// CachedStore caches the bags of another store for a TTL. Empty results are
// cached too; errors are not, so a failing store is retried on every lookup.
// A failing cache is bypassed.
type CachedStore struct {
	next  Store
	cache Cache
	ttl   time.Duration
	opts  options
}

// NewCachedStore wraps next with cache.
func NewCachedStore(next Store, cache Cache, ttl time.Duration, opts ...Option) *CachedStore {
	return &CachedStore{
		next:  next,
		cache: cache,
		ttl:   ttl,
		opts:  newOptions(opts),
	}
}

func propertiesKey(alias string, dir tlsconfig.Direction) string {
	return "props:" + dir.String() + ":" + alias
}

const defaultKey = "default"

// GetProperties returns the cached bag for alias and dir, reading through on a miss.
func (s *CachedStore) GetProperties(ctx context.Context, alias string, dir tlsconfig.Direction) (tlsconfig.Properties, error) {
	return s.get(ctx, propertiesKey(alias, dir), func(ctx context.Context) (tlsconfig.Properties, error) {
		return s.next.GetProperties(ctx, alias, dir)
	})
}

// GetDefaultProperties returns the cached default bag, reading through on a miss.
func (s *CachedStore) GetDefaultProperties(ctx context.Context) (tlsconfig.Properties, error) {
	return s.get(ctx, defaultKey, s.next.GetDefaultProperties)
}

// Invalidate drops the cached bags for alias in both directions.
func (s *CachedStore) Invalidate(ctx context.Context, alias string) error {
	return errors.Join(
		s.cache.Delete(ctx, propertiesKey(alias, tlsconfig.Outbound)),
		s.cache.Delete(ctx, propertiesKey(alias, tlsconfig.Inbound)),
	)
}

func (s *CachedStore) get(
	ctx context.Context,
	key string,
	load func(context.Context) (tlsconfig.Properties, error),
) (tlsconfig.Properties, error) {
	ctx, span := observability.StartSpan(ctx, "store.cache.Get",
		attribute.String("cache.key", key),
	)
	defer span.End()

	b, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var p tlsconfig.Properties
		if uerr := json.Unmarshal(b, &p); uerr == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			s.opts.metrics.RecordStoreOperation(cacheStoreName, avatls.StoreHit)
			return p, nil
		}
		s.opts.logger.Warn("dropping undecodable cache entry", observability.String("key", key))
	case !errors.Is(err, ErrCacheMiss):
		s.opts.logger.Warn("cache read failed, bypassing",
			observability.String("key", key),
			observability.Error(err),
		)
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	s.opts.metrics.RecordStoreOperation(cacheStoreName, avatls.StoreMiss)

	p, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if b, merr := json.Marshal(p); merr == nil {
		if serr := s.cache.Set(ctx, key, b, s.ttl); serr != nil {
			s.opts.logger.Warn("cache write failed",
				observability.String("key", key),
				observability.Error(serr),
			)
		}
	}
	return p, nil
}

// Close closes the cache and the wrapped store.
func (s *CachedStore) Close() error {
	return errors.Join(s.cache.Close(), s.next.Close())
}

package kvsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore implements Store using Memcached's native item expiry.
type MemcachedStore struct {
	client     *memcache.Client
	keys       Keyspace
	defaultTTL time.Duration
}

// MemcachedConfig holds configuration for the Memcached store.
type MemcachedConfig struct {
	Servers  []string
	Keyspace Keyspace
	// DefaultTTL replaces non-positive write TTLs. Defaults to DefaultTTL.
	DefaultTTL time.Duration
	// Timeout bounds individual Memcached operations. Defaults to 0 (no
	// timeout); the convenience constructor sets 1s to avoid hanging
	// requests when the cache is down.
	Timeout time.Duration
	Retry   RetryConfig
	Logger  *slog.Logger
}

// NewMemcachedStore creates a MemcachedStore with a 1s operation timeout
// and verifies the servers are reachable.
func NewMemcachedStore(keys Keyspace, servers ...string) (*MemcachedStore, error) {
	return NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers:  servers,
		Keyspace: keys,
		Timeout:  1 * time.Second,
	})
}

// NewMemcachedStoreWithConfig creates a MemcachedStore with custom
// configuration, pinging the servers under the bootstrap retry loop.
func NewMemcachedStoreWithConfig(cfg MemcachedConfig) (*MemcachedStore, error) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{"127.0.0.1:11211"}
	}
	if cfg.Keyspace.Namespace == "" {
		cfg.Keyspace.Namespace = "sessions"
	}
	if cfg.Keyspace.Collection == "" {
		cfg.Keyspace.Collection = "web"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout

	target := strings.Join(cfg.Servers, ",")
	if err := connectRetry(cfg.Retry, cfg.Logger, target, client.Ping); err != nil {
		return nil, err
	}

	return &MemcachedStore{
		client:     client,
		keys:       cfg.Keyspace,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// Read fetches the payload for id. A cache miss yields a nil payload.
func (s *MemcachedStore) Read(ctx context.Context, id string) ([]byte, error) {
	item, err := s.client.Get(s.keys.key(id))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from memcached: %w", err)
	}
	return item.Value, nil
}

// Write upserts the payload for id with the effective TTL as the item
// expiration.
func (s *MemcachedStore) Write(ctx context.Context, id string, data []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	err := s.client.Set(&memcache.Item{
		Key:        s.keys.key(id),
		Value:      data,
		Expiration: memcacheExpiration(time.Now(), ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save to memcached: %w", err)
	}
	return id, nil
}

// Remove deletes the record for id. A cache miss is not an error.
func (s *MemcachedStore) Remove(ctx context.Context, id string) error {
	err := s.client.Delete(s.keys.key(id))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("failed to delete from memcached: %w", err)
	}
	return nil
}

// Close releases all open connections.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

// memcacheExpiration converts a TTL into Memcached's Expiration field.
// Memcached treats values above 30 days (60*60*24*30 seconds) as absolute
// Unix timestamps, so longer TTLs must be sent as now+ttl; a large delta
// would be read as a timestamp in 1970 and expire immediately.
func memcacheExpiration(now time.Time, ttl time.Duration) int32 {
	const maxDelta = 30 * 24 * 60 * 60 // 30 days in seconds

	if ttl > maxDelta*time.Second {
		return int32(now.Add(ttl).Unix())
	}
	if ttl < 0 {
		return 0
	}
	return int32(ttl.Seconds())
}

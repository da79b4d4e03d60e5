package kvsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// dataField is the single record field the session payload lives under.
const dataField = "data"

// RedisStore implements Store on a Redis server. Records are hashes with a
// single "data" field, keyed by namespace:collection:id, and expire through
// Redis's own key TTL.
type RedisStore struct {
	client     *redis.Client
	keys       Keyspace
	defaultTTL time.Duration
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	// Endpoints lists host:port candidates. Each bootstrap attempt walks
	// the whole list; the first reachable endpoint is used for the
	// lifetime of the store. Defaults to 127.0.0.1:6379.
	Endpoints []string
	Keyspace  Keyspace
	// DefaultTTL replaces non-positive write TTLs. Defaults to DefaultTTL.
	DefaultTTL time.Duration
	// DialTimeout bounds a single connection attempt. Defaults to 1s.
	DialTimeout time.Duration
	Retry       RetryConfig
	Logger      *slog.Logger
}

func (cfg RedisConfig) withDefaults() RedisConfig {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"127.0.0.1:6379"}
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
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = time.Second
	}
	return cfg
}

// NewRedisStore opens a connection to the first reachable endpoint,
// retrying the whole list with the configured delay between attempts.
// Exhausting the retries returns the last connection error.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg = cfg.withDefaults()

	var client *redis.Client
	target := strings.Join(cfg.Endpoints, ",")
	err := connectRetry(cfg.Retry, cfg.Logger, target, func() error {
		var lastErr error
		for _, addr := range cfg.Endpoints {
			c := redis.NewClient(&redis.Options{
				Addr:        addr,
				DialTimeout: cfg.DialTimeout,
			})
			pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
			err := c.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				client = c
				return nil
			}
			lastErr = err
			_ = c.Close()
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}

	return &RedisStore{
		client:     client,
		keys:       cfg.Keyspace,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// Read fetches the payload for id. A missing record yields a nil payload.
func (s *RedisStore) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.keys.key(id), dataField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}
	return data, nil
}

// Write upserts the payload for id and applies the effective TTL to the
// record. The hash write and the expiry travel in one pipeline so a record
// is never left without a TTL.
func (s *RedisStore) Write(ctx context.Context, id string, data []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	key := s.keys.key(id)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, dataField, data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to write to redis: %w", err)
	}
	return id, nil
}

// Remove deletes the record for id. DEL on a missing key is a no-op.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.keys.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Close releases the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

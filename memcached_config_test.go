package kvsession

import (
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcached is often not available in CI/local envs by default; these tests
// probe for it first and skip when it is unreachable, so the default
// bootstrap retry loop never runs against a dead server.

func skipWithoutMemcached(t *testing.T, addr string) {
	t.Helper()
	probe := memcache.New(addr)
	probe.Timeout = 250 * time.Millisecond
	if err := probe.Ping(); err != nil {
		t.Skipf("Skipping Memcached test: %v (is memcached running on %s?)", err, addr)
	}
}

func TestMemcachedStore_TimeoutConfig(t *testing.T) {
	addr := "127.0.0.1:11211"
	skipWithoutMemcached(t, addr)

	t.Run("Default Timeout", func(t *testing.T) {
		store, err := NewMemcachedStore(Keyspace{Namespace: "test", Collection: "sessions"}, addr)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		defer store.Close()

		if store.client.Timeout != 1*time.Second {
			t.Errorf("Expected default timeout of 1s, got %v", store.client.Timeout)
		}
	})

	t.Run("Custom Timeout", func(t *testing.T) {
		timeout := 5 * time.Second
		store, err := NewMemcachedStoreWithConfig(MemcachedConfig{
			Servers: []string{addr},
			Timeout: timeout,
			Retry:   RetryConfig{Retries: 1},
			Logger:  quietLogger(),
		})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		defer store.Close()

		if store.client.Timeout != timeout {
			t.Errorf("Expected timeout of %v, got %v", timeout, store.client.Timeout)
		}
	})
}

func TestMemcachedStore_Lifecycle(t *testing.T) {
	addr := "127.0.0.1:11211"
	skipWithoutMemcached(t, addr)

	store, err := NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers:  []string{addr},
		Keyspace: Keyspace{Namespace: "test", Collection: "sessions"},
		Timeout:  1 * time.Second,
		Retry:    RetryConfig{Retries: 1},
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := t.Context()

	id, err := store.Write(ctx, "mc-lifecycle", []byte("hello"), 0)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if id != "mc-lifecycle" {
		t.Errorf("expected identifier returned unchanged, got %q", id)
	}

	data, err := store.Read(ctx, "mc-lifecycle")
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", data)
	}

	if err := store.Remove(ctx, "mc-lifecycle"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	data, err = store.Read(ctx, "mc-lifecycle")
	if err != nil {
		t.Fatalf("failed to read after remove: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty payload after remove, got %q", data)
	}

	if err := store.Remove(ctx, "mc-lifecycle"); err != nil {
		t.Errorf("remove of missing session should not fail: %v", err)
	}
}

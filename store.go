package kvsession

import (
	"context"
	"time"
)

// DefaultTTL is the record lifetime applied when a write does not carry a
// positive TTL of its own (30 days).
const DefaultTTL = 30 * 24 * time.Hour

// Keyspace is the (namespace, collection) pair session records are grouped
// under. Both parts are fixed when a store is constructed; only the session
// identifier varies per record.
type Keyspace struct {
	Namespace  string
	Collection string
}

func (k Keyspace) key(id string) string {
	return k.Namespace + ":" + k.Collection + ":" + id
}

// Store persists opaque session payloads keyed by session identifier.
//
// Identifiers are generated by the caller (typically the Manager); a store
// never invents them. A single store handle is created at startup, shared by
// all in-flight requests, and closed once at shutdown. Implementations must
// be safe for concurrent use.
type Store interface {
	// Read fetches the payload stored under id. A missing record yields a
	// nil payload and no error; any other failure propagates unmodified.
	Read(ctx context.Context, id string) ([]byte, error)

	// Write upserts the payload stored under id. A non-positive ttl is
	// replaced by the store's default TTL. Returns the identifier unchanged.
	Write(ctx context.Context, id string, data []byte, ttl time.Duration) (string, error)

	// Remove deletes the record stored under id. Removing a record that
	// does not exist is not an error.
	Remove(ctx context.Context, id string) error

	// Close releases the underlying connection. Call exactly once at
	// shutdown.
	Close() error
}

// Cleaner is implemented by stores whose backend has no native record
// expiry (the SQL stores) and therefore needs expired rows deleted
// periodically. The Manager runs its cleanup worker only for these.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

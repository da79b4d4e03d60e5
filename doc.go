/*
Package kvsession persists web sessions as opaque payloads in an external
key-value or SQL database, with connection bootstrap retry and TTL-based
expiry delegated to the database engine.

The core abstraction is Store: three CRUD operations (Read, Write, Remove)
plus Close, keyed by session identifier under a fixed (namespace,
collection) pair. Reads of a missing record return an empty payload, writes
overwrite, removes of a missing record are a no-op, and a non-positive
write TTL falls back to a configurable default (30 days). Network-backed
stores establish their connection at startup with a bounded, fixed-delay
retry loop; per-operation failures are never retried locally and surface
to the caller unchanged.

Backends:

  - Redis: uses github.com/redis/go-redis/v9 with native key TTLs.
  - Memcached: uses github.com/bradfitz/gomemcache with native item expiry.
  - PostgreSQL: uses github.com/lib/pq; expiry is enforced at read time and
    by periodic cleanup.
  - SQLite: uses modernc.org/sqlite for a CGO-free embedded database, with
    the same read-time filtering and cleanup.

On top of the Store, Manager provides cookie-based session handling for
net/http applications: ID generation and validation, gob serialization of
session values, session fixation protection (Regenerate), secure cookie
defaults (HttpOnly, SameSite), a configurable maximum session size, and a
background cleanup worker for backends without native expiry.

Usage:

	store, err := kvsession.NewRedisStore(ctx, kvsession.RedisConfig{
		Endpoints: []string{"127.0.0.1:6379"},
		Keyspace:  kvsession.Keyspace{Namespace: "sessions", Collection: "web"},
	})
	if err != nil {
		log.Fatal(err)
	}

	mgr := kvsession.NewManager(kvsession.Config{
		Store:      store,
		TTL:        24 * time.Hour,
		CookieName: "session_id",
	})
	defer mgr.Close()

	http.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		session, _ := mgr.Get(r)
		session.Set("username", "alice")
		if err := mgr.Save(w, r, session); err != nil {
			http.Error(w, "Failed to save session", http.StatusInternalServerError)
		}
	})

Thread Safety:

The Manager and Store implementations are safe for concurrent use by
multiple goroutines; concurrency control is delegated to the underlying
database clients. Individual Session objects guard their values with a
mutex but are intended to be handled within the scope of a single request.
*/
package kvsession

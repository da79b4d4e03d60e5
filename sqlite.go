package kvsession

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database. Like PostgreSQL,
// SQLite has no native record TTL, so reads filter on expires_at and
// Cleanup deletes expired rows.
type SQLiteStore struct {
	db          *sql.DB
	keys        Keyspace
	defaultTTL  time.Duration
	mu          sync.Mutex // Serializes writes to avoid SQLITE_BUSY
	writeStmt   *sql.Stmt
	readStmt    *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteConfig holds configuration for the SQLite store.
type SQLiteConfig struct {
	DSN      string
	Keyspace Keyspace
	// DefaultTTL replaces non-positive write TTLs. Defaults to DefaultTTL.
	DefaultTTL      time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a SQLite store for the given database file.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{
		DSN:          dsn,
		MaxOpenConns: 16, // Allow concurrent readers (writers are serialized by mutex)
		MaxIdleConns: 16,
	})
}

// NewSQLiteStoreWithConfig creates a SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Keyspace.Namespace == "" {
		cfg.Keyspace.Namespace = "sessions"
	}
	if cfg.Keyspace.Collection == "" {
		cfg.Keyspace.Collection = "web"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	// Inject PRAGMAs into the DSN so they apply to every connection in the
	// pool, not just the first one.
	if !strings.Contains(cfg.DSN, "synchronous") {
		separator := "?"
		if strings.Contains(cfg.DSN, "?") {
			separator = "&"
		}
		cfg.DSN = fmt.Sprintf("%s%s_pragma=synchronous=NORMAL", cfg.DSN, separator)
	}
	if !strings.Contains(cfg.DSN, "busy_timeout") {
		separator := "?"
		if strings.Contains(cfg.DSN, "?") {
			separator = "&"
		}
		cfg.DSN = fmt.Sprintf("%s%s_pragma=busy_timeout=5000", cfg.DSN, separator)
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// WAL mode is persistent for the database file, so executing it once
	// is sufficient.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		key TEXT PRIMARY KEY,
		data BLOB,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	store := &SQLiteStore{
		db:         db,
		keys:       cfg.Keyspace,
		defaultTTL: cfg.DefaultTTL,
	}

	store.writeStmt, err = db.Prepare(`
		INSERT INTO sessions (key, data, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare write statement: %w", err)
	}

	store.readStmt, err = db.Prepare("SELECT data FROM sessions WHERE key = ? AND expires_at > ?")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare read statement: %w", err)
	}

	store.deleteStmt, err = db.Prepare("DELETE FROM sessions WHERE key = ?")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	store.cleanupStmt, err = db.Prepare("DELETE FROM sessions WHERE expires_at < ?")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return store, nil
}

// Read fetches the payload for id. Missing and expired records both yield
// a nil payload.
func (s *SQLiteStore) Read(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.readStmt.QueryRowContext(ctx, s.keys.key(id), time.Now()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return data, nil
}

// Write upserts the payload for id with expires_at set from the effective
// TTL.
func (s *SQLiteStore) Write(ctx context.Context, id string, data []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.writeStmt.ExecContext(ctx, s.keys.key(id), data, time.Now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return id, nil
}

// Remove deletes the record for id. Deleting a missing row is a no-op.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.deleteStmt.ExecContext(ctx, s.keys.key(id))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Cleanup deletes expired records.
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.cleanupStmt.ExecContext(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return nil
}

// Close releases the prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	if s.writeStmt != nil {
		s.writeStmt.Close()
	}
	if s.readStmt != nil {
		s.readStmt.Close()
	}
	if s.deleteStmt != nil {
		s.deleteStmt.Close()
	}
	if s.cleanupStmt != nil {
		s.cleanupStmt.Close()
	}
	return s.db.Close()
}

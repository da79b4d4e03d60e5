package kvsession

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// PostgreSQLStore implements Store on PostgreSQL. The engine has no native
// record TTL, so reads filter on expires_at and Cleanup deletes expired
// rows; the Manager's background worker calls it periodically.
type PostgreSQLStore struct {
	db          *sql.DB
	keys        Keyspace
	defaultTTL  time.Duration
	writeStmt   *sql.Stmt
	readStmt    *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// PostgreSQLConfig holds configuration for the PostgreSQL store.
type PostgreSQLConfig struct {
	DSN      string
	Keyspace Keyspace
	// DefaultTTL replaces non-positive write TTLs. Defaults to DefaultTTL.
	DefaultTTL      time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Retry           RetryConfig
	Logger          *slog.Logger
}

// NewPostgreSQLStore creates a PostgreSQL store with default pool settings.
func NewPostgreSQLStore(dsn string) (*PostgreSQLStore, error) {
	return NewPostgreSQLStoreWithConfig(PostgreSQLConfig{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	})
}

// NewPostgreSQLStoreWithConfig creates a PostgreSQL store with custom
// configuration, pinging the server under the bootstrap retry loop.
func NewPostgreSQLStoreWithConfig(cfg PostgreSQLConfig) (*PostgreSQLStore, error) {
	if cfg.Keyspace.Namespace == "" {
		cfg.Keyspace.Namespace = "sessions"
	}
	if cfg.Keyspace.Collection == "" {
		cfg.Keyspace.Collection = "web"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql database: %w", err)
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
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := connectRetry(cfg.Retry, cfg.Logger, cfg.DSN, db.Ping); err != nil {
		db.Close()
		return nil, err
	}

	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		key TEXT PRIMARY KEY,
		data BYTEA,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	store := &PostgreSQLStore{
		db:         db,
		keys:       cfg.Keyspace,
		defaultTTL: cfg.DefaultTTL,
	}

	store.writeStmt, err = db.Prepare(`
		INSERT INTO sessions (key, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare write statement: %w", err)
	}

	store.readStmt, err = db.Prepare("SELECT data FROM sessions WHERE key = $1 AND expires_at > $2")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare read statement: %w", err)
	}

	store.deleteStmt, err = db.Prepare("DELETE FROM sessions WHERE key = $1")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	store.cleanupStmt, err = db.Prepare("DELETE FROM sessions WHERE expires_at < $1")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return store, nil
}

// Read fetches the payload for id. Missing and expired records both yield
// a nil payload.
func (s *PostgreSQLStore) Read(ctx context.Context, id string) ([]byte, error) {
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
func (s *PostgreSQLStore) Write(ctx context.Context, id string, data []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	_, err := s.writeStmt.ExecContext(ctx, s.keys.key(id), data, time.Now().Add(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return id, nil
}

// Remove deletes the record for id. Deleting a missing row is a no-op.
func (s *PostgreSQLStore) Remove(ctx context.Context, id string) error {
	_, err := s.deleteStmt.ExecContext(ctx, s.keys.key(id))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Cleanup deletes expired records.
func (s *PostgreSQLStore) Cleanup(ctx context.Context) error {
	_, err := s.cleanupStmt.ExecContext(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return nil
}

// Close releases the prepared statements and the connection pool.
func (s *PostgreSQLStore) Close() error {
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

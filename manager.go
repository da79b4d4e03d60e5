package kvsession

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionTooLarge is returned when the serialized session exceeds
	// the configured MaxSessionBytes.
	ErrSessionTooLarge = errors.New("session data too large")

	// ErrInvalidSessionID is returned when the session ID format is invalid.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Manager handles the cookie side of sessions on top of a Store. The store
// is an injected dependency owned by the caller; the Manager closes it when
// the Manager itself is closed.
type Manager struct {
	store           Store
	ttl             time.Duration
	cookie          string
	cookiePath      string
	cookieDomain    string
	cleanup         time.Duration
	stopChan        chan struct{}
	httpOnly        bool
	secure          *bool
	sameSite        http.SameSite
	maxSessionBytes int
}

// Config holds configuration for the Manager.
type Config struct {
	Store           Store
	TTL             time.Duration
	CookieName      string
	CookiePath      string
	CookieDomain    string
	CleanupInterval time.Duration
	HttpOnly        *bool
	Secure          *bool
	SameSite        http.SameSite
	MaxSessionBytes int // Maximum size in bytes of the serialized session data. 0 means unlimited.
}

// NewManager creates a Manager. The cleanup worker only runs when the
// store implements Cleaner; KV backends expire records natively and don't
// need it.
func NewManager(cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "session_id"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	m := &Manager{
		store:           cfg.Store,
		ttl:             cfg.TTL,
		cookie:          cfg.CookieName,
		cookiePath:      cfg.CookiePath,
		cookieDomain:    cfg.CookieDomain,
		cleanup:         cfg.CleanupInterval,
		stopChan:        make(chan struct{}),
		httpOnly:        true, // Default
		secure:          cfg.Secure,
		sameSite:        http.SameSiteLaxMode, // Default
		maxSessionBytes: cfg.MaxSessionBytes,
	}

	if cfg.HttpOnly != nil {
		m.httpOnly = *cfg.HttpOnly
	}

	if cfg.SameSite != 0 {
		m.sameSite = cfg.SameSite
	}

	// Security: SameSite=None requires Secure=true. Browsers reject
	// SameSite=None cookies without the Secure attribute.
	if m.sameSite == http.SameSiteNoneMode {
		secure := true
		m.secure = &secure
	}

	if cleaner, ok := cfg.Store.(Cleaner); ok {
		go m.cleanupWorker(cleaner)
	}

	return m
}

func (m *Manager) cleanupWorker(cleaner Cleaner) {
	ticker := time.NewTicker(m.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = cleaner.Cleanup(ctx)
			cancel()
		case <-m.stopChan:
			return
		}
	}
}

// Close stops the cleanup worker and closes the store. Call exactly once
// at shutdown.
func (m *Manager) Close() error {
	close(m.stopChan)
	return m.store.Close()
}

// Get returns the session referenced by the request's cookie, or a fresh
// session when there is no cookie, the ID is malformed, the record is
// missing, or the record has expired.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookie)
	if err != nil {
		return m.New(), nil
	}

	// Input validation: the ID must match our format (32 hex characters)
	// before it reaches the backend store.
	if !isValidID(cookie.Value) {
		return m.New(), nil
	}

	data, err := m.store.Read(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return m.New(), nil
	}

	if m.maxSessionBytes > 0 && len(data) > m.maxSessionBytes {
		return nil, ErrSessionTooLarge
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	// Security: enforce expiration at the Manager level. Some backends rely
	// on lazy expiration or external TTLs; we must never return an expired
	// session.
	if env.ExpiresAt.Before(time.Now()) {
		return m.New(), nil
	}

	return &Session{
		ID:        cookie.Value,
		Values:    env.Values,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, nil
}

// Save persists the session and sets the session cookie on the response.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	// Hold the session lock so concurrent Session.Set/Delete calls can't
	// mutate Values while it is being encoded.
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isValidID(s.ID) {
		return ErrInvalidSessionID
	}

	s.ExpiresAt = time.Now().Add(m.ttl)

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer PutBuffer(buf)

	env := sessionEnvelope{
		Values:    s.Values,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	if err := encodeEnvelope(buf, env); err != nil {
		return err
	}

	if m.maxSessionBytes > 0 && buf.Len() > m.maxSessionBytes {
		return ErrSessionTooLarge
	}

	// Store.Write is synchronous and must consume the bytes before
	// returning; the buffer is wiped and pooled afterwards.
	if _, err := m.store.Write(r.Context(), s.ID, buf.Bytes(), m.ttl); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    s.ID,
		Path:     m.cookiePath,
		Domain:   m.cookieDomain,
		Expires:  s.ExpiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: m.httpOnly,
		Secure:   m.secureFor(r),
		SameSite: m.sameSite,
	})

	return nil
}

// Regenerate replaces the session ID to prevent session fixation attacks.
// It saves the session under a new ID and removes the old record.
func (m *Manager) Regenerate(w http.ResponseWriter, r *http.Request, s *Session) error {
	oldID := s.ID
	newID, err := generateID()
	if err != nil {
		return err
	}
	s.ID = newID

	if err := m.Save(w, r, s); err != nil {
		s.ID = oldID // Restore old ID on failure
		return err
	}

	if err := m.store.Remove(r.Context(), oldID); err != nil {
		// Security: a still-valid old ID is a fixation vector, so fail
		// closed: drop the new record and clear the cookie.
		_ = m.store.Remove(r.Context(), newID)
		m.expireCookie(w, r)
		return err
	}

	return nil
}

// Destroy removes the session from the store, clears its values from
// memory, and expires the cookie. The cookie is cleared even when the
// store deletion fails so the client ends up logged out either way.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	m.expireCookie(w, r)

	defer s.Clear()

	if err := m.store.Remove(r.Context(), s.ID); err != nil {
		return err
	}

	return nil
}

// New creates a fresh, unsaved session.
func (m *Manager) New() *Session {
	id, err := generateID()
	if err != nil {
		panic(err)
	}
	now := time.Now()
	return &Session{
		ID:        id,
		Values:    make(map[string]any),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
}

func (m *Manager) secureFor(r *http.Request) bool {
	if m.secure != nil {
		return *m.secure
	}
	return r.TLS != nil
}

func (m *Manager) expireCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     m.cookiePath,
		Domain:   m.cookieDomain,
		MaxAge:   -1,
		HttpOnly: m.httpOnly,
		Secure:   m.secureFor(r),
		SameSite: m.sameSite,
	})
}

// generateID returns a 32-character lowercase hex session ID. The UUID is
// built from the current crypto/rand.Reader so entropy failures surface as
// errors instead of being masked by a cached generator.
func generateID() (string, error) {
	u, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		return "", err
	}
	var dst [32]byte
	hex.Encode(dst[:], u[:])
	return string(dst[:]), nil
}

// validIDChars is a lookup table for valid hex characters (0-9, a-f).
var validIDChars = [256]bool{}

func init() {
	for i := 0; i < len(validIDChars); i++ {
		c := byte(i)
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			validIDChars[i] = true
		}
	}
}

func isValidID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for i := 0; i < 32; i++ {
		if !validIDChars[id[i]] {
			return false
		}
	}
	return true
}

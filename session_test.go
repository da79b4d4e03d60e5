package kvsession

import (
	"testing"
	"time"
)

func TestSessionAccessors(t *testing.T) {
	s := &Session{
		ID:        "0123456789abcdef0123456789abcdef",
		Values:    make(map[string]any),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("expected missing key to report !ok")
	}

	s.Set("user", "alice")
	if v, ok := s.Get("user"); !ok || v != "alice" {
		t.Errorf("expected alice, got %v", v)
	}

	s.Delete("user")
	if _, ok := s.Get("user"); ok {
		t.Error("expected deleted key to be gone")
	}

	s.Set("a", 1)
	s.Set("b", 2)
	s.Clear()
	if len(s.Values) != 0 {
		t.Errorf("expected cleared session, got %d values", len(s.Values))
	}
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateID()
		if err != nil {
			t.Fatalf("failed to generate id: %v", err)
		}
		if !isValidID(id) {
			t.Fatalf("generated id %q is not valid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestIsValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0123456789abcdef0123456789abcdef", true},
		{"", false},
		{"0123456789abcdef0123456789abcde", false},   // 31 chars
		{"0123456789abcdef0123456789abcdef0", false}, // 33 chars
		{"0123456789ABCDEF0123456789ABCDEF", false},  // uppercase
		{"0123456789abcdeg0123456789abcdef", false},  // non-hex
	}
	for _, tt := range tests {
		if got := isValidID(tt.id); got != tt.want {
			t.Errorf("isValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

package kvsession

import (
	"testing"
	"time"
)

func TestMemcacheExpiration(t *testing.T) {
	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ttl  time.Duration
		want int32
	}{
		{
			name: "Short TTL (1 hour)",
			ttl:  time.Hour,
			want: 3600, // Delta
		},
		{
			name: "Exact 30 Days (Delta)",
			ttl:  30 * 24 * time.Hour,
			want: int32(30 * 24 * 3600), // Delta
		},
		{
			name: "30 Days + 1 Second (Timestamp)",
			ttl:  30*24*time.Hour + time.Second,
			want: int32(now.Add(30*24*time.Hour + time.Second).Unix()),
		},
		{
			name: "Long TTL (60 days) - Use Timestamp",
			ttl:  60 * 24 * time.Hour,
			want: int32(now.Add(60 * 24 * time.Hour).Unix()),
		},
		{
			name: "Negative TTL clamps to zero",
			ttl:  -time.Hour,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := memcacheExpiration(now, tt.ttl)
			if got != tt.want {
				t.Errorf("memcacheExpiration() = %v, want %v", got, tt.want)
			}
		})
	}
}

package kvsession

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestRaceCondition is a regression test for a race between Manager.Save
// and Session.Set: Save encodes s.Values while Set writes to it. Save must
// hold the session lock for the whole encode-and-write sequence.
func TestRaceCondition(t *testing.T) {
	store := &mockStore{}
	mgr := NewManager(Config{
		Store: store,
		TTL:   time.Hour,
	})
	defer mgr.Close()

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	session := mgr.New()

	var wg sync.WaitGroup
	start := make(chan struct{})
	duration := 500 * time.Millisecond

	// Goroutine 1: Modifies the session constantly
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		end := time.Now().Add(duration)
		i := 0
		for time.Now().Before(end) {
			session.Set("key", i)
			i++
		}
	}()

	// Goroutine 2: Saves the session constantly
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		end := time.Now().Add(duration)
		for time.Now().Before(end) {
			_ = mgr.Save(w, req, session)
		}
	}()

	close(start)
	wg.Wait()
}

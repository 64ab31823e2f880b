package relay

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newIdleSession(id string) *Session {
	return NewSession(context.Background(), id, newFakeSender(), nil, Options{})
}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry(nil)
	if !r.Add(newIdleSession("a")) || !r.Add(newIdleSession("b")) {
		t.Fatal("add failed")
	}
	if r.Add(newIdleSession("a")) {
		t.Error("duplicate id should be rejected")
	}
	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
	if !r.Remove("a") {
		t.Error("first remove should succeed")
	}
	if r.Remove("a") {
		t.Error("second remove should be a no-op")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
}

func TestRegistryConcurrentRemove(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(newIdleSession("x"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Remove("x") {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if removed != 1 {
		t.Fatalf("removed = %d, want exactly 1", removed)
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d, want 0", r.Count())
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry(nil)
	sessions := []*Session{newIdleSession("1"), newIdleSession("2")}
	for _, s := range sessions {
		r.Add(s)
		go s.Run()
	}

	r.CloseAll()
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("session %s not closed", s.ID())
		}
		if s.State() != StateClosed {
			t.Errorf("session %s state = %v", s.ID(), s.State())
		}
	}
}

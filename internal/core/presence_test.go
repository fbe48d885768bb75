package core

import (
	"sync"
	"testing"
)

func TestPresenceLastWriteWins(t *testing.T) {
	p := NewPresence()
	id := Anonymous("sess-123")

	if got := p.Status(id); got != StatusUnknown {
		t.Fatalf("expected unknown before any write, got %v", got)
	}

	p.SetStatus(id, StatusOnline)
	if got := p.Status(id); got != StatusOnline {
		t.Fatalf("expected online, got %v", got)
	}

	p.SetStatus(id, StatusOffline)
	if got := p.Status(id); got != StatusOffline {
		t.Fatalf("expected offline after sequential writes, got %v", got)
	}
}

func TestPresenceIdempotentWrites(t *testing.T) {
	p := NewPresence()
	id := Authenticated("alice")

	p.SetStatus(id, StatusOnline)
	p.SetStatus(id, StatusOnline)
	if got := p.Status(id); got != StatusOnline {
		t.Fatalf("expected online, got %v", got)
	}
}

func TestPresenceLookupByRawKey(t *testing.T) {
	p := NewPresence()
	p.SetStatus(Authenticated("alice"), StatusOnline)

	if got := p.Lookup("alice"); got != StatusOnline {
		t.Fatalf("expected online via raw key, got %v", got)
	}
	if got := p.Lookup("nobody"); got != StatusUnknown {
		t.Fatalf("expected unknown for unseen key, got %v", got)
	}
}

func TestPresenceConcurrentWritesSameKey(t *testing.T) {
	p := NewPresence()
	id := Anonymous("sess-racy")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.SetStatus(id, StatusOnline)
		}()
		go func() {
			defer wg.Done()
			p.SetStatus(id, StatusOffline)
		}()
	}
	wg.Wait()

	// One of the writers was last; either way the entry must hold a
	// definite state, not a torn or missing one.
	if got := p.Status(id); got != StatusOnline && got != StatusOffline {
		t.Fatalf("expected a definite status, got %v", got)
	}
}

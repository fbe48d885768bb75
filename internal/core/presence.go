package core

import "sync"

// ClientStatus is a participant's presence state.
type ClientStatus string

const (
	StatusOnline  ClientStatus = "online"
	StatusOffline ClientStatus = "offline"
	StatusUnknown ClientStatus = "unknown"
)

// Presence is the process-wide registry of per-identity online state.
// Writes for the same identity serialize on the mutex; last write wins.
// Entries accumulate for the process lifetime and are rebuilt from zero
// on restart.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]ClientStatus
}

// NewPresence constructs an empty registry.
func NewPresence() *Presence {
	return &Presence{entries: make(map[string]ClientStatus)}
}

// SetStatus records the identity's presence. Idempotent.
func (p *Presence) SetStatus(id Identity, status ClientStatus) {
	p.mu.Lock()
	p.entries[id.Key()] = status
	p.mu.Unlock()
}

// Status returns the identity's presence, or StatusUnknown if it was
// never recorded.
func (p *Presence) Status(id Identity) ClientStatus {
	return p.Lookup(id.Key())
}

// Lookup returns the presence recorded under a raw identity token.
// Used when the token comes from persisted data rather than a live
// connection.
func (p *Presence) Lookup(key string) ClientStatus {
	p.mu.RLock()
	status, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return StatusUnknown
	}
	return status
}

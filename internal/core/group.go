package core

import "sync"

// Groups is the per-room broadcast registry. A session joins the group of
// exactly one room for its lifetime; broadcast delivers to the snapshot of
// members at the time the call executes. Delivery is best-effort: a slow
// member's buffer fills and the event is dropped for that member rather
// than blocking the others.
type Groups struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// NewGroups constructs an empty registry.
func NewGroups() *Groups {
	return &Groups{rooms: make(map[string]map[*Session]struct{})}
}

// Join adds a session to a room's group, creating the group if needed.
func (g *Groups) Join(room string, s *Session) {
	g.mu.Lock()
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		g.rooms[room] = members
	}
	members[s] = struct{}{}
	g.mu.Unlock()
}

// Leave removes a session from a room's group. The group is dropped when
// its last member leaves.
func (g *Groups) Leave(room string, s *Session) {
	g.mu.Lock()
	if members, ok := g.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	g.mu.Unlock()
}

// Broadcast sends an event to every session currently joined to the room.
func (g *Groups) Broadcast(room string, event *Event) {
	g.mu.RLock()
	snapshot := make([]*Session, 0, len(g.rooms[room]))
	for member := range g.rooms[room] {
		snapshot = append(snapshot, member)
	}
	g.mu.RUnlock()

	for _, member := range snapshot {
		select {
		case member.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// Count returns the number of sessions joined to the room.
func (g *Groups) Count(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[room])
}

package core

import "testing"

func testSession(buffer int) *Session {
	return &Session{Events: make(chan *Event, buffer)}
}

func TestGroupsBroadcastReachesMembers(t *testing.T) {
	g := NewGroups()
	a := testSession(4)
	b := testSession(4)

	g.Join("room", a)
	g.Join("room", b)

	g.Broadcast("room", &Event{Kind: EventUserTyping, Room: "room", User: "alice"})

	for _, s := range []*Session{a, b} {
		ev := mustEvent(t, s.Events, EventUserTyping)
		if ev.User != "alice" || ev.Room != "room" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

func TestGroupsLeaveExcludesFromSnapshot(t *testing.T) {
	g := NewGroups()
	a := testSession(4)
	b := testSession(4)

	g.Join("room", a)
	g.Join("room", b)
	g.Leave("room", a)

	g.Broadcast("room", &Event{Kind: EventUserTyping, Room: "room"})

	mustEvent(t, b.Events, EventUserTyping)
	mustNoEvent(t, a.Events, EventUserTyping)
}

func TestGroupsLateJoinerMissesEarlierBroadcasts(t *testing.T) {
	g := NewGroups()
	a := testSession(4)

	g.Join("room", a)
	g.Broadcast("room", &Event{Kind: EventUserTyping, Room: "room"})

	late := testSession(4)
	g.Join("room", late)

	mustEvent(t, a.Events, EventUserTyping)
	mustNoEvent(t, late.Events, EventUserTyping)
}

func TestGroupsSlowConsumerDoesNotBlock(t *testing.T) {
	g := NewGroups()
	slow := testSession(1)
	healthy := testSession(8)

	g.Join("room", slow)
	g.Join("room", healthy)

	// Overflow the slow member's buffer; delivery to the healthy member
	// must not be affected.
	for i := 0; i < 5; i++ {
		g.Broadcast("room", &Event{Kind: EventUserTyping, Room: "room"})
	}

	mustEvent(t, healthy.Events, EventUserTyping)
	if got := len(healthy.Events); got != 4 {
		t.Fatalf("expected healthy member to hold remaining events, got %d", got)
	}
	if got := len(slow.Events); got != 1 {
		t.Fatalf("expected slow member to hold only its buffer, got %d", got)
	}
}

func TestGroupsDropEmptyRooms(t *testing.T) {
	g := NewGroups()
	a := testSession(1)

	g.Join("room", a)
	if got := g.Count("room"); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	g.Leave("room", a)
	if got := g.Count("room"); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}

	// Broadcast to a vanished room is a no-op.
	g.Broadcast("room", &Event{Kind: EventUserTyping})
}

package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sageteam-org/sagechat-server/internal/render"
	"github.com/sageteam-org/sagechat-server/internal/store"
)

// fakeStore is an in-memory store.Store for session and coordinator
// tests. Set failCreate to make CreateMessage fail.
type fakeStore struct {
	mu         sync.Mutex
	rooms      map[string]*store.Room
	agents     map[int64]*store.Agent
	messages   map[int64][]*store.ChatMessage
	nextID     int64
	failCreate bool
	failSave   bool

	createMessageCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    make(map[string]*store.Room),
		agents:   make(map[int64]*store.Agent),
		messages: make(map[int64][]*store.ChatMessage),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

// addAgent seeds an agent record and returns it.
func (f *fakeStore) addAgent(username string) *store.Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent := &store.Agent{
		ID:       f.id(),
		UserID:   f.id(),
		Username: username,
		Status:   store.AgentOffline,
		JoinedAt: time.Now(),
	}
	f.agents[agent.ID] = agent
	return agent
}

// addRoom seeds a room and returns it.
func (f *fakeStore) addRoom(name string) *store.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := &store.Room{ID: f.id(), Name: name, CreatedAt: time.Now()}
	f.rooms[name] = room
	return room
}

func (f *fakeStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateAgent(ctx context.Context, userID int64) (*store.Agent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) GetAgentByUsername(ctx context.Context, username string) (*store.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, agent := range f.agents {
		if agent.Username == username {
			copied := *agent
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetAgentByID(ctx context.Context, id int64) (*store.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent, ok := f.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *agent
	return &copied, nil
}

func (f *fakeStore) SaveAgent(ctx context.Context, agent *store.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("store unavailable")
	}
	current, ok := f.agents[agent.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.Status = agent.Status
	return nil
}

func (f *fakeStore) GetOrCreateRoom(ctx context.Context, name string) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok := f.rooms[name]; ok {
		copied := *room
		return &copied, nil
	}
	room := &store.Room{ID: f.id(), Name: name, CreatedAt: time.Now()}
	f.rooms[name] = room
	copied := *room
	return &copied, nil
}

func (f *fakeStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[name]
	if !ok {
		return nil, fmt.Errorf("room %q: %w", name, store.ErrNotFound)
	}
	copied := *room
	return &copied, nil
}

func (f *fakeStore) AssignAgent(ctx context.Context, roomID, agentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.ID == roomID {
			id := agentID
			room.AgentID = &id
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListActiveRooms(ctx context.Context) ([]*store.RoomSummary, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) CreateMessage(ctx context.Context, msg *store.ChatMessage) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createMessageCalls++
	if f.failCreate {
		return nil, errors.New("store unavailable")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	saved := *msg
	saved.ID = f.id()
	saved.Timestamp = time.Now()
	f.messages[msg.RoomID] = append(f.messages[msg.RoomID], &saved)
	return &saved, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, roomID int64, limit int) ([]*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.messages[roomID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*store.ChatMessage, len(all))
	copy(out, all)
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

// newTestDeps builds a deps bundle over a fake store and real renderer.
func newTestDeps(t *testing.T) (Deps, *fakeStore) {
	t.Helper()

	renderer, err := render.NewHTML()
	if err != nil {
		t.Fatalf("build renderer: %v", err)
	}

	st := newFakeStore()
	logger := zerolog.New(nil)
	groups := NewGroups()
	return Deps{
		Store:    st,
		Presence: NewPresence(),
		Groups:   groups,
		Agents:   NewAgentCoordinator(st, groups, &logger),
		Renderer: renderer,
		Log:      &logger,
	}, st
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

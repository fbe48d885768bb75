package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sageteam-org/sagechat-server/internal/proto"
	"github.com/sageteam-org/sagechat-server/internal/render"
	"github.com/sageteam-org/sagechat-server/internal/store"
)

const (
	// DefaultHistoryLimit caps the replay window broadcast with each
	// chat message.
	DefaultHistoryLimit = 50

	// eventBuffer sizes the per-session event channel. Events beyond it
	// are dropped for that session by the broadcast group.
	eventBuffer = 16

	// cleanupTimeout bounds the disconnect path, which must run even
	// when the connection's own context is already canceled.
	cleanupTimeout = 5 * time.Second

	timestampLayout = "2006-01-02 15:04:05"
)

// Deps bundles the collaborators a session mediates between.
type Deps struct {
	Store        store.Store
	Presence     *Presence
	Groups       *Groups
	Agents       *AgentCoordinator
	Renderer     render.Renderer
	HistoryLimit int
	Log          *zerolog.Logger
}

// Session is one live connection's view of a room. It owns the connect,
// inbound-message, and disconnect lifecycle; all cross-session
// communication goes through the presence registry, the broadcast
// groups, and the store.
type Session struct {
	// ID identifies the connection for logging.
	ID string
	// Events receives broadcasts from the session's room.
	Events chan *Event

	deps     Deps
	identity Identity
	roomName string

	// Set by Connect.
	room  *store.Room
	agent *store.Agent // nil when the identity has no agent record

	closeOnce sync.Once
}

// NewSession builds a session for the given identity and room name.
// Connect must succeed before the session handles any traffic.
func NewSession(id string, identity Identity, roomName string, deps Deps) *Session {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = DefaultHistoryLimit
	}
	return &Session{
		ID:       id,
		Events:   make(chan *Event, eventBuffer),
		deps:     deps,
		identity: identity,
		roomName: roomName,
	}
}

// Connect runs the Connecting -> Joined transition: resolve identity and
// room, register presence, join the broadcast group, and propagate agent
// status. Fail-closed: on any error the session holds no shared state and
// the connection must be rejected.
func (s *Session) Connect(ctx context.Context) error {
	if s.identity.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidIdentity, s.ID)
	}

	// Explicit optional lookup: does this identity have an agent record?
	if s.identity.IsAuthenticated() {
		agent, err := s.deps.Store.GetAgentByUsername(ctx, s.identity.Key())
		switch {
		case err == nil:
			s.agent = agent
		case errors.Is(err, store.ErrNotFound):
			// Regular authenticated user.
		default:
			return fmt.Errorf("resolve agent: %w", err)
		}
	}

	// Visitor rooms are created lazily; agents may only join rooms that
	// already exist.
	var err error
	if s.agent != nil {
		s.room, err = s.deps.Store.GetRoomByName(ctx, s.roomName)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, s.roomName)
		}
	} else {
		s.room, err = s.deps.Store.GetOrCreateRoom(ctx, s.roomName)
	}
	if err != nil {
		return fmt.Errorf("resolve room %q: %w", s.roomName, err)
	}

	s.deps.Presence.SetStatus(s.identity, StatusOnline)
	s.deps.Groups.Join(s.roomName, s)
	s.deps.Groups.Broadcast(s.roomName, &Event{
		Kind:          EventClientStatus,
		Room:          s.roomName,
		Identifier:    s.identity.Key(),
		Authenticated: s.identity.IsAuthenticated(),
		Status:        StatusOnline,
	})

	if s.agent != nil {
		if err := s.deps.Agents.MarkOnline(ctx, s.roomName, s.agent); err != nil {
			// Roll back so the rejected connection leaves no trace. The
			// online status was already broadcast, so the remaining
			// members need the compensating offline update.
			s.deps.Groups.Leave(s.roomName, s)
			s.deps.Presence.SetStatus(s.identity, StatusOffline)
			s.deps.Groups.Broadcast(s.roomName, &Event{
				Kind:          EventClientStatus,
				Room:          s.roomName,
				Identifier:    s.identity.Key(),
				Authenticated: s.identity.IsAuthenticated(),
				Status:        StatusOffline,
			})
			return fmt.Errorf("mark agent online: %w", err)
		}
	}

	s.deps.Log.Info().
		Str("session_id", s.ID).
		Str("room", s.roomName).
		Str("identity", s.identity.Key()).
		Bool("agent", s.agent != nil).
		Msg("session joined")
	return nil
}

// HandleInbound processes one inbound payload from the active loop.
// Errors never tear down the connection: a persistence failure is
// surfaced to this sender only, and anything else is a silent no-op.
func (s *Session) HandleInbound(ctx context.Context, p proto.Payload) {
	if p.Typing {
		s.deps.Groups.Broadcast(s.roomName, &Event{
			Kind:   EventUserTyping,
			Room:   s.roomName,
			User:   s.identity.DisplayName(),
			Typing: p.Typing,
		})
		return
	}

	if p.Message == "" {
		return
	}

	msg := s.newMessage(p.Message)
	if _, err := s.deps.Store.CreateMessage(ctx, msg); err != nil {
		s.deps.Log.Error().Err(err).
			Str("session_id", s.ID).
			Str("room", s.roomName).
			Msg("persist message")
		s.sendToSelf(&Event{
			Kind: EventError,
			Room: s.roomName,
			Err:  coreError(ErrCodePersistence, "message could not be saved"),
		})
		return
	}

	history, err := s.deps.Store.ListMessages(ctx, s.room.ID, s.deps.HistoryLimit)
	if err != nil {
		s.deps.Log.Error().Err(err).
			Str("session_id", s.ID).
			Str("room", s.roomName).
			Msg("load history")
		s.sendToSelf(&Event{
			Kind: EventError,
			Room: s.roomName,
			Err:  coreError(ErrCodePersistence, "history could not be loaded"),
		})
		return
	}

	s.deps.Groups.Broadcast(s.roomName, &Event{
		Kind:     EventChatMessage,
		Room:     s.roomName,
		Messages: history,
	})
}

// newMessage binds text to this session's identity. Exactly one of author
// and session key is set; the identity was validated at connect time, so
// a violation here is a programming error.
func (s *Session) newMessage(text string) *store.ChatMessage {
	msg := &store.ChatMessage{RoomID: s.room.ID, Text: text}
	if s.identity.IsAuthenticated() {
		author := s.identity.Key()
		msg.Author = &author
	} else {
		key := s.identity.Key()
		msg.SessionKey = &key
	}
	if err := msg.Validate(); err != nil {
		panic(err)
	}
	return msg
}

// Disconnect runs the Joined -> Disconnected transition exactly once,
// whatever caused the connection to end. It uses its own context so that
// cleanup still runs after the transport context is canceled.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		s.deps.Presence.SetStatus(s.identity, StatusOffline)
		s.deps.Groups.Leave(s.roomName, s)
		s.deps.Groups.Broadcast(s.roomName, &Event{
			Kind:          EventClientStatus,
			Room:          s.roomName,
			Identifier:    s.identity.Key(),
			Authenticated: s.identity.IsAuthenticated(),
			Status:        StatusOffline,
		})

		if s.agent != nil {
			if err := s.deps.Agents.MarkOffline(ctx, s.roomName, s.agent); err != nil {
				s.deps.Log.Warn().Err(err).
					Str("session_id", s.ID).
					Str("room", s.roomName).
					Msg("mark agent offline")
			}
		}

		s.deps.Log.Info().
			Str("session_id", s.ID).
			Str("room", s.roomName).
			Str("identity", s.identity.Key()).
			Msg("session left")
	})
}

// Render turns a delivered event into the outbound display fragment for
// this connection. Per-viewer fields (agent view, presence) are resolved
// here, at delivery time.
func (s *Session) Render(ctx context.Context, ev *Event) (string, error) {
	switch ev.Kind {
	case EventChatMessage:
		return s.renderChat(ctx, ev)
	case EventUserTyping:
		return s.deps.Renderer.Render(render.TemplateTyping, render.TypingView{
			Username: ev.User,
			Typing:   ev.Typing,
		})
	case EventAgentStatus:
		return s.renderAgentStatus(ctx, ev)
	case EventClientStatus:
		return s.deps.Renderer.Render(render.TemplateClientInfo, render.ClientView{
			Identifier:    ev.Identifier,
			Status:        string(ev.Status),
			Authenticated: ev.Authenticated,
		})
	case EventError:
		return s.deps.Renderer.Render(render.TemplateError, render.ErrorView{
			Code:    ev.Err.Code,
			Message: ev.Err.Message,
		})
	default:
		return "", fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func (s *Session) renderChat(ctx context.Context, ev *Event) (string, error) {
	authorName := "Anonymous"
	var authorKey string
	if len(ev.Messages) > 0 {
		first := ev.Messages[0]
		switch {
		case first.Author != nil:
			authorName = *first.Author
			authorKey = *first.Author
		case first.SessionKey != nil:
			authorKey = *first.SessionKey
		}
	}

	agent, err := s.currentAgent(ctx)
	if err != nil {
		return "", err
	}

	isAgent := agent != nil &&
		s.identity.IsAuthenticated() &&
		s.identity.Key() == agent.Username

	view := render.ChatView{
		RoomName:     s.roomName,
		Messages:     messageRows(ev.Messages),
		AuthorName:   authorName,
		IsAgent:      isAgent,
		ClientStatus: string(s.deps.Presence.Lookup(authorKey)),
	}
	if agent != nil {
		view.Agent = &render.AgentInfo{
			Username: agent.Username,
			Status:   string(agent.Status),
		}
	}

	return s.deps.Renderer.Render(render.TemplateChat, view)
}

// renderAgentStatus re-reads the room's current assigned agent rather
// than carrying the triggering agent in the event. A stale event arriving
// after a reassignment therefore reports the new agent, not the one that
// triggered it.
func (s *Session) renderAgentStatus(ctx context.Context, ev *Event) (string, error) {
	agent, err := s.currentAgent(ctx)
	if err != nil {
		return "", err
	}

	var info *render.AgentInfo
	if agent != nil {
		status := store.AgentOnline
		if ev.Disconnect {
			status = store.AgentOffline
		}
		info = &render.AgentInfo{
			Username: agent.Username,
			Status:   string(status),
		}
	}

	return s.deps.Renderer.Render(render.TemplateAgentInfo, info)
}

func (s *Session) currentAgent(ctx context.Context) (*store.Agent, error) {
	room, err := s.deps.Store.GetRoomByName(ctx, s.roomName)
	if err != nil {
		return nil, fmt.Errorf("reread room %q: %w", s.roomName, err)
	}
	if room.AgentID == nil {
		return nil, nil
	}

	agent, err := s.deps.Store.GetAgentByID(ctx, *room.AgentID)
	if err != nil {
		return nil, fmt.Errorf("reread agent %d: %w", *room.AgentID, err)
	}
	return agent, nil
}

func (s *Session) sendToSelf(ev *Event) {
	select {
	case s.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}

func messageRows(messages []*store.ChatMessage) []render.MessageRow {
	rows := make([]render.MessageRow, 0, len(messages))
	for _, msg := range messages {
		author := "Anonymous"
		if msg.Author != nil {
			author = *msg.Author
		}
		rows = append(rows, render.MessageRow{
			Author:    author,
			Text:      msg.Text,
			Timestamp: msg.Timestamp.Format(timestampLayout),
		})
	}
	return rows
}

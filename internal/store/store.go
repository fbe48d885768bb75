package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AgentStatus tracks an agent's availability.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
)

// User is an authenticated account. Agents are users with an Agent record.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Agent is a support agent, 1:1 with a user account.
type Agent struct {
	ID       int64
	UserID   int64
	Username string
	Status   AgentStatus
	JoinedAt time.Time
}

// Room is a named chat channel with at most one assigned agent.
type Room struct {
	ID        int64
	Name      string
	AgentID   *int64 // nil until an agent claims the room
	CreatedAt time.Time
}

// RoomSummary is a room plus its message count, for the agent panel.
type RoomSummary struct {
	Room
	MessageCount int64
}

// ChatMessage is a persisted chat message. Exactly one of Author and
// SessionKey is set: Author for authenticated senders, SessionKey for
// anonymous visitors.
type ChatMessage struct {
	ID         int64
	RoomID     int64
	Author     *string
	SessionKey *string
	Text       string
	Timestamp  time.Time
}

// Validate enforces the author/session-key exclusivity invariant.
func (m *ChatMessage) Validate() error {
	if m.Author != nil && m.SessionKey != nil {
		return fmt.Errorf("chat message has both author and session key")
	}
	if m.Author == nil && m.SessionKey == nil {
		return fmt.Errorf("chat message has neither author nor session key")
	}
	return nil
}

// UserStore handles user accounts.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// AgentStore handles agent records.
type AgentStore interface {
	// CreateAgent creates an agent record for a user.
	CreateAgent(ctx context.Context, userID int64) (*Agent, error)

	// GetAgentByUsername retrieves the agent backed by the given username.
	// Returns ErrNotFound when the user has no agent record.
	GetAgentByUsername(ctx context.Context, username string) (*Agent, error)

	// GetAgentByID retrieves an agent by ID.
	GetAgentByID(ctx context.Context, id int64) (*Agent, error)

	// SaveAgent persists the agent's mutable fields (status).
	SaveAgent(ctx context.Context, agent *Agent) error
}

// RoomStore handles rooms.
type RoomStore interface {
	// GetOrCreateRoom returns the room with the given name, creating it
	// if absent.
	GetOrCreateRoom(ctx context.Context, name string) (*Room, error)

	// GetRoomByName retrieves a room by name. Returns ErrNotFound when
	// the room does not exist.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// AssignAgent sets the room's agent, overwriting any prior assignment.
	AssignAgent(ctx context.Context, roomID, agentID int64) error

	// ListActiveRooms lists rooms that have at least one message,
	// with message counts.
	ListActiveRooms(ctx context.Context) ([]*RoomSummary, error)
}

// MessageStore handles chat messages.
type MessageStore interface {
	// CreateMessage persists a message and returns it with ID and
	// timestamp filled in.
	CreateMessage(ctx context.Context, msg *ChatMessage) (*ChatMessage, error)

	// ListMessages returns up to limit of the room's most recent
	// messages in ascending timestamp order.
	ListMessages(ctx context.Context, roomID int64, limit int) ([]*ChatMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	AgentStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

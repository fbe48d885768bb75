package core

import "github.com/sageteam-org/sagechat-server/internal/store"

// EventKind is a notification fanned out to room members.
type EventKind int

const (
	// EventChatMessage carries the room's recent history after a new message.
	EventChatMessage EventKind = iota
	// EventUserTyping signals that a participant started or stopped typing.
	EventUserTyping
	// EventAgentStatus signals that the room's agent went online or offline.
	EventAgentStatus
	// EventClientStatus signals that a participant connected or disconnected.
	EventClientStatus
	// EventError is delivered to a single sender when their message could
	// not be handled. Never broadcast.
	EventError
)

// Event describes what happened in a room. Fields beyond Kind and Room are
// populated per kind.
type Event struct {
	Kind EventKind
	Room string

	// EventChatMessage: history window, ascending timestamp order.
	Messages []*store.ChatMessage

	// EventUserTyping
	User   string
	Typing bool

	// EventAgentStatus: the receiver re-reads the room's current agent;
	// Disconnect only picks the reported status.
	Disconnect bool

	// EventClientStatus
	Identifier    string
	Authenticated bool
	Status        ClientStatus

	// EventError
	Err *CoreError
}

// File views.go defines view data for the chat fragment templates.
package render

// Template names for the outbound event kinds.
const (
	TemplateChat        = "chat.html"
	TemplateTyping      = "typing.html"
	TemplateAgentInfo   = "agent_info.html"
	TemplateClientInfo  = "client_info.html"
	TemplateError       = "error.html"
	TemplateVisitorPage = "widget.html"
)

// MessageRow holds one formatted chat message for display.
type MessageRow struct {
	// Author is the display name of the sender.
	Author string
	// Text is the message body.
	Text string
	// Timestamp is the formatted send time.
	Timestamp string
}

// AgentInfo holds formatted agent data for display.
type AgentInfo struct {
	// Username is the agent's display name.
	Username string
	// Status is the agent's availability label.
	Status string
}

// ChatView is the data for the room history fragment.
type ChatView struct {
	// RoomName names the room being rendered.
	RoomName string
	// Messages is the history window, oldest first.
	Messages []MessageRow
	// AuthorName is the display name of the first message's author.
	AuthorName string
	// IsAgent reports whether the viewer is the room's assigned agent.
	IsAgent bool
	// ClientStatus is the first author's presence label.
	ClientStatus string
	// Agent describes the room's assigned agent, nil when unassigned.
	Agent *AgentInfo
}

// TypingView is the data for the typing indicator fragment.
type TypingView struct {
	Username string
	Typing   bool
}

// ClientView is the data for the participant status fragment.
type ClientView struct {
	Identifier    string
	Status        string
	Authenticated bool
}

// ErrorView is the data for the sender-only error fragment.
type ErrorView struct {
	Code    string
	Message string
}

// WidgetView is the data for the visitor chat page.
type WidgetView struct {
	RoomName string
	Messages []MessageRow
}

package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sageteam-org/sagechat-server/internal/store"
)

// AgentCoordinator assigns agents to rooms and propagates agent status
// changes to room members.
type AgentCoordinator struct {
	store  store.Store
	groups *Groups
	log    *zerolog.Logger
}

// NewAgentCoordinator builds a coordinator over the given store and groups.
func NewAgentCoordinator(st store.Store, groups *Groups, logger *zerolog.Logger) *AgentCoordinator {
	return &AgentCoordinator{store: st, groups: groups, log: logger}
}

// Claim assigns the agent to the room, unconditionally overwriting any
// prior assignment. Two agents claiming the same room concurrently leave
// it assigned to whichever claim persists last; there is no negotiation.
func (c *AgentCoordinator) Claim(ctx context.Context, room *store.Room, agent *store.Agent) error {
	if err := c.store.AssignAgent(ctx, room.ID, agent.ID); err != nil {
		return fmt.Errorf("claim room %q: %w", room.Name, err)
	}

	c.log.Info().
		Str("room", room.Name).
		Str("agent", agent.Username).
		Msg("agent claimed room")
	return nil
}

// MarkOnline sets the agent's status to online and notifies the room.
func (c *AgentCoordinator) MarkOnline(ctx context.Context, roomName string, agent *store.Agent) error {
	return c.mark(ctx, roomName, agent, store.AgentOnline, false)
}

// MarkOffline sets the agent's status to offline and notifies the room
// with the disconnect flag set.
func (c *AgentCoordinator) MarkOffline(ctx context.Context, roomName string, agent *store.Agent) error {
	return c.mark(ctx, roomName, agent, store.AgentOffline, true)
}

func (c *AgentCoordinator) mark(ctx context.Context, roomName string, agent *store.Agent, status store.AgentStatus, disconnect bool) error {
	agent.Status = status
	if err := c.store.SaveAgent(ctx, agent); err != nil {
		return fmt.Errorf("save agent %q: %w", agent.Username, err)
	}

	// The event carries only the disconnect flag; each receiver re-reads
	// the room's current assigned agent when rendering. After a
	// reassignment a stale event therefore reports the new agent's state,
	// not the triggering agent's.
	c.groups.Broadcast(roomName, &Event{
		Kind:       EventAgentStatus,
		Room:       roomName,
		Disconnect: disconnect,
	})
	return nil
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sageteam-org/sagechat-server/internal/core"
	"github.com/sageteam-org/sagechat-server/internal/store"
)

// AgentHandlers provides the agent panel API.
type AgentHandlers struct {
	deps core.Deps
	log  *zerolog.Logger
}

// NewAgentHandlers creates a new agent handlers instance.
func NewAgentHandlers(deps core.Deps, logger *zerolog.Logger) *AgentHandlers {
	return &AgentHandlers{deps: deps, log: logger}
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Agent        string `json:"agent,omitempty"`
	MessageCount int64  `json:"message_count,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ListRooms returns the rooms with at least one message, for the agent
// panel.
// GET /api/agent/rooms
func (h *AgentHandlers) ListRooms(c *gin.Context) {
	summaries, err := h.deps.Store.ListActiveRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	rooms := make([]RoomResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp := RoomResponse{
			ID:           sum.ID,
			Name:         sum.Name,
			MessageCount: sum.MessageCount,
			CreatedAt:    sum.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if sum.AgentID != nil {
			if agent, err := h.deps.Store.GetAgentByID(c.Request.Context(), *sum.AgentID); err == nil {
				resp.Agent = agent.Username
			}
		}
		rooms = append(rooms, resp)
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ClaimRoom assigns the calling agent to a room, overwriting any prior
// assignment. Callers without an agent record are rejected.
// POST /api/agent/rooms/:name/claim
func (h *AgentHandlers) ClaimRoom(c *gin.Context) {
	username, ok := currentUsername(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	agent, err := h.deps.Store.GetAgentByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not an agent"})
			return
		}
		h.log.Error().Err(err).Str("username", username).Msg("resolve agent")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	room, err := h.deps.Store.GetRoomByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Msg("resolve room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if err := h.deps.Agents.Claim(c.Request.Context(), room, agent); err != nil {
		h.log.Error().Err(err).Msg("claim room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Agent:     agent.Username,
		CreatedAt: room.CreatedAt.Format("2006-01-02 15:04:05"),
	})
}

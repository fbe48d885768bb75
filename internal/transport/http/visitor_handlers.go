package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sageteam-org/sagechat-server/internal/auth"
	"github.com/sageteam-org/sagechat-server/internal/core"
	"github.com/sageteam-org/sagechat-server/internal/render"
	"github.com/sageteam-org/sagechat-server/internal/store"
)

// VisitorHandlers serves the visitor-facing chat page.
type VisitorHandlers struct {
	deps core.Deps
	auth *auth.Service
	log  *zerolog.Logger
}

// NewVisitorHandlers creates a new visitor handlers instance.
func NewVisitorHandlers(deps core.Deps, authService *auth.Service, logger *zerolog.Logger) *VisitorHandlers {
	return &VisitorHandlers{deps: deps, auth: authService, log: logger}
}

// ChatPage resolves the caller's room (username for authenticated users,
// session key for visitors, issuing one on first visit), creates the
// room if needed, and renders the chat page with its history.
// GET /
func (v *VisitorHandlers) ChatPage(c *gin.Context) {
	roomName := v.resolveRoomName(c)

	room, err := v.deps.Store.GetOrCreateRoom(c.Request.Context(), roomName)
	if err != nil {
		v.log.Error().Err(err).Str("room", roomName).Msg("resolve room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	history, err := v.deps.Store.ListMessages(c.Request.Context(), room.ID, v.deps.HistoryLimit)
	if err != nil {
		v.log.Error().Err(err).Str("room", roomName).Msg("load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	page, err := v.deps.Renderer.Render(render.TemplateVisitorPage, render.WidgetView{
		RoomName: room.Name,
		Messages: historyRows(history),
	})
	if err != nil {
		v.log.Error().Err(err).Msg("render chat page")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// resolveRoomName picks the stable identity token that names the
// caller's room: the username from a valid JWT, else the session cookie,
// else a freshly issued session key.
func (v *VisitorHandlers) resolveRoomName(c *gin.Context) string {
	if token := bearerToken(c); token != "" {
		if claims, err := v.auth.ValidateToken(token); err == nil {
			return claims.Username
		}
	}

	if key, err := c.Cookie(SessionCookie); err == nil && key != "" {
		return key
	}

	key := v.auth.NewVisitorSession()
	c.SetCookie(SessionCookie, key, 0, "/", "", false, true)
	return key
}

func historyRows(messages []*store.ChatMessage) []render.MessageRow {
	rows := make([]render.MessageRow, 0, len(messages))
	for _, msg := range messages {
		author := "Anonymous"
		if msg.Author != nil {
			author = *msg.Author
		}
		rows = append(rows, render.MessageRow{
			Author:    author,
			Text:      msg.Text,
			Timestamp: msg.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

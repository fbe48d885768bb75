package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sageteam-org/sagechat-server/internal/auth"
	"github.com/sageteam-org/sagechat-server/internal/config"
	"github.com/sageteam-org/sagechat-server/internal/core"
	"github.com/sageteam-org/sagechat-server/internal/proto"
)

// SessionCookie carries the anonymous visitor session key.
const SessionCookie = "sagechat_session"

// WSHandler upgrades chat connections and bridges them to core.Session.
type WSHandler struct {
	deps core.Deps
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps core.Deps, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{deps: deps, auth: authService, cfg: cfg, log: logger}
}

// Handle serves GET /ws/chatroom/:room. Identity and room are resolved
// before the upgrade so that a failed connect is rejected with a plain
// HTTP status instead of being accepted and then dropped.
func (h *WSHandler) Handle(c *gin.Context) {
	roomName := c.Param("room")

	identity, ok := h.resolveIdentity(c)
	if !ok {
		c.JSON(stdhttp.StatusForbidden, ErrorResponse{Error: "no user or visitor session"})
		return
	}

	session := core.NewSession(uuid.NewString(), identity, roomName, h.deps)
	if err := session.Connect(c.Request.Context()); err != nil {
		status := stdhttp.StatusInternalServerError
		switch {
		case errors.Is(err, core.ErrRoomNotFound):
			status = stdhttp.StatusNotFound
		case errors.Is(err, core.ErrInvalidIdentity):
			status = stdhttp.StatusForbidden
		}
		h.log.Warn().Err(err).Str("room", roomName).Msg("connect rejected")
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	defer session.Disconnect()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// resolveIdentity maps the request to exactly one identity form: a valid
// JWT wins, then a visitor session key; neither means rejection.
func (h *WSHandler) resolveIdentity(c *gin.Context) (core.Identity, bool) {
	if token := bearerToken(c); token != "" {
		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			h.log.Debug().Err(err).Msg("invalid ws token")
			return core.Identity{}, false
		}
		return core.Authenticated(claims.Username), true
	}

	if key := c.Query("session"); key != "" {
		return core.Anonymous(key), true
	}
	if key, err := c.Cookie(SessionCookie); err == nil && key != "" {
		return core.Anonymous(key), true
	}

	return core.Identity{}, false
}

func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	limiter := newRateLimiter(h.cfg.MessageRateLimit)

	for {
		readCtx := ctx
		cancel := context.CancelFunc(func() {})
		if h.cfg.IdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, h.cfg.IdleTimeout)
		}
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Warn().Str("session_id", session.ID).Msg("rate limit exceeded, dropping frame")
			continue
		}

		payload, err := proto.Decode(data)
		if err != nil {
			// Malformed frames are dropped with no state change.
			h.log.Debug().Err(err).Str("session_id", session.ID).Msg("dropping malformed payload")
			continue
		}

		session.HandleInbound(ctx, payload)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case event, ok := <-session.Events:
			if !ok {
				return nil
			}
			fragment, err := session.Render(ctx, event)
			if err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("render event")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(fragment)); err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

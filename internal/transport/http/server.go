package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sageteam-org/sagechat-server/internal/auth"
	"github.com/sageteam-org/sagechat-server/internal/config"
	"github.com/sageteam-org/sagechat-server/internal/core"
)

// NewServer builds the HTTP server: auth endpoints, the visitor chat
// page, the agent panel API, and the websocket chat endpoint.
func NewServer(deps core.Deps, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/healthz", healthHandler)

	visitor := NewVisitorHandlers(deps, authService, logger)
	router.GET("/", visitor.ChatPage)

	authHandlers := NewAuthHandlers(authService, logger)
	api := router.Group("/api")
	api.POST("/register", authHandlers.Register)
	api.POST("/login", authHandlers.Login)
	api.POST("/session", authHandlers.Session)

	agentHandlers := NewAgentHandlers(deps, logger)
	agent := api.Group("/agent", AuthMiddleware(authService, logger))
	agent.GET("/rooms", agentHandlers.ListRooms)
	agent.POST("/rooms/:name/claim", agentHandlers.ClaimRoom)

	ws := NewWSHandler(deps, authService, cfg, logger)
	router.GET("/ws/chatroom/:room", ws.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	fmt.Fprint(c.Writer, "ok")
}

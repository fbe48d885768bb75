package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/sageteam-org/sagechat-server/internal/auth"
	"github.com/sageteam-org/sagechat-server/internal/config"
	"github.com/sageteam-org/sagechat-server/internal/core"
	"github.com/sageteam-org/sagechat-server/internal/render"
	"github.com/sageteam-org/sagechat-server/internal/store"
	"github.com/sageteam-org/sagechat-server/internal/store/sqlite"
)

type testEnv struct {
	srv   *httptest.Server
	store store.Store
	auth  *auth.Service
	deps  core.Deps
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	renderer, err := render.NewHTML()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}

	logger := zerolog.New(nil)
	cfg := config.Default()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	groups := core.NewGroups()
	deps := core.Deps{
		Store:        st,
		Presence:     core.NewPresence(),
		Groups:       groups,
		Agents:       core.NewAgentCoordinator(st, groups, &logger),
		Renderer:     renderer,
		HistoryLimit: cfg.HistoryLimit,
		Log:          &logger,
	}

	server := NewServer(deps, authService, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, store: st, auth: authService, deps: deps}
}

// registerAgent creates a user with an agent record and returns the
// agent row plus a valid bearer token.
func (e *testEnv) registerAgent(t *testing.T, username string) (*store.Agent, string) {
	t.Helper()
	ctx := context.Background()

	token, err := e.auth.Register(ctx, username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}

	user, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		t.Fatalf("lookup %s: %v", username, err)
	}
	agent, err := e.store.CreateAgent(ctx, user.ID)
	if err != nil {
		t.Fatalf("create agent %s: %v", username, err)
	}

	return agent, token
}

// wsURL turns the test server's base URL into a websocket URL for the
// given room with extra query parameters.
func (e *testEnv) wsURL(room, query string) string {
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/chatroom/" + room
	if query != "" {
		url += "?" + query
	}
	return url
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })

	return conn
}

// readUntil reads frames until one contains the given substring. Frames
// arriving before the wanted one (join notifications, history replays)
// are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, substr string) string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("waiting for fragment containing %q: %v", substr, err)
		}
		if strings.Contains(string(data), substr) {
			return string(data)
		}
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

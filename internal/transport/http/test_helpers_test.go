package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/auth"
	"github.com/velling/presence-server/internal/config"
	"github.com/velling/presence-server/internal/core"
	"github.com/velling/presence-server/internal/proto"
)

type testEnv struct {
	ts       *httptest.Server
	registry *core.Registry
	router   *core.ChannelRouter
	jwtCfg   *auth.JWTConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}

	registry := core.NewRegistry(&logger)
	router := core.NewChannelRouter(registry)
	dispatcher := core.NewDispatcher(registry, router, &logger, nil)

	cfg := config.Default()
	cfg.Addr = ":0"

	server := NewServer(Deps{
		Registry:   registry,
		Router:     router,
		Dispatcher: dispatcher,
		Verifier:   auth.NewVerifier(jwtCfg),
	}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(registry.Shutdown)

	return &testEnv{ts: ts, registry: registry, router: router, jwtCfg: jwtCfg}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

func (e *testEnv) mintToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(e.jwtCfg, userID, userID, nil)
	if err != nil {
		t.Fatalf("mint token for %s: %v", userID, err)
	}
	return token
}

// dial opens a websocket for the given user and consumes the connected ack,
// so the connection is registered by the time dial returns.
func (e *testEnv) dial(t *testing.T, ctx context.Context, userID string) (*websocket.Conn, proto.ConnectedData) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL()+"?token="+e.mintToken(t, userID), nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	env := readEvent(t, ctx, conn, proto.OutConnected)
	var ack proto.ConnectedData
	decodeData(t, env, &ack)
	return conn, ack
}

// readEvent reads envelopes until one matches the wanted event name.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) proto.Envelope {
	t.Helper()

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("reading while waiting for %q: %v", want, err)
		}
		if env.Event == want {
			return env
		}
	}
}

// expectSilence asserts no envelope arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	var env proto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err == nil {
		t.Fatalf("expected no event, received %q", env.Event)
	}
}

func decodeData(t *testing.T, env proto.Envelope, v any) {
	t.Helper()
	if err := gojson.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode %q data: %v", env.Event, err)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

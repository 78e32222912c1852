package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/mocks"
	"github.com/phrazzld/tasknotify/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		Path:             "/ws/notifications",
		Fanout:           "local",
		BroadcastChannel: "notifications:push",
		AuthTimeout:      2 * time.Second,
		SendBuffer:       8,
		WriteTimeout:     time.Second,
		PingInterval:     time.Second,
	}
}

type testServer struct {
	*httptest.Server
	handler  *Handler
	registry *registry.InMemoryRegistry
	pusher   *LocalPusher
}

func newTestServer(t *testing.T, cfg config.RealtimeConfig) *testServer {
	t.Helper()
	jwt := &mocks.MockJWTService{
		ValidateTokenFn: mocks.TokenMap(map[string]string{
			"token-u1": "u1",
			"token-u2": "u2",
		}),
	}
	reg := registry.NewInMemoryRegistry(testLogger(), nil)
	h, err := NewHandler(cfg, jwt, reg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, handler: h, registry: reg, pusher: NewLocalPusher(reg, testLogger())}
}

func (ts *testServer) dial(t *testing.T, query url.Values, header http.Header) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	push, err := registry.NewPush(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(push))
}

func readFrame(t *testing.T, conn *websocket.Conn) registry.Push {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame registry.Push
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// connect dials and completes the handshake for userID.
func (ts *testServer) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := ts.dial(t, url.Values{"token": {"token-" + userID}, "userId": {userID}}, nil)
	sendFrame(t, conn, domain.EventAuthenticate, AuthenticatePayload{UserID: userID})
	frame := readFrame(t, conn)
	require.Equal(t, domain.EventAuthenticated, frame.Event)
	return conn
}

func failureReason(t *testing.T, frame registry.Push) string {
	t.Helper()
	require.Equal(t, domain.EventAuthenticationFailed, frame.Event)
	var payload FailurePayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	return payload.Reason
}

func TestHandshake(t *testing.T) {
	ts := newTestServer(t, testRealtimeConfig())

	t.Run("query token", func(t *testing.T) {
		conn := ts.dial(t, url.Values{"token": {"token-u1"}, "userId": {"u1"}}, nil)
		sendFrame(t, conn, domain.EventAuthenticate, AuthenticatePayload{UserID: "u1"})

		frame := readFrame(t, conn)
		require.Equal(t, domain.EventAuthenticated, frame.Event)
		var payload AuthenticatedPayload
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		assert.Equal(t, "u1", payload.UserID)
		assert.NotEmpty(t, payload.SessionID)
	})

	t.Run("token in authenticate frame", func(t *testing.T) {
		conn := ts.dial(t, nil, nil)
		sendFrame(t, conn, domain.EventAuthenticate, AuthenticatePayload{UserID: "u2", Token: "token-u2"})
		assert.Equal(t, domain.EventAuthenticated, readFrame(t, conn).Event)
	})

	t.Run("authorization header", func(t *testing.T) {
		conn := ts.dial(t, nil, http.Header{"Authorization": {"Bearer token-u1"}})
		sendFrame(t, conn, domain.EventAuthenticate, AuthenticatePayload{UserID: "u1"})
		assert.Equal(t, domain.EventAuthenticated, readFrame(t, conn).Event)
	})

	t.Run("frames before authenticate are ignored", func(t *testing.T) {
		conn := ts.dial(t, url.Values{"token": {"token-u1"}}, nil)
		sendFrame(t, conn, "ping", nil)
		sendFrame(t, conn, domain.EventAuthenticate, AuthenticatePayload{UserID: "u1"})
		assert.Equal(t, domain.EventAuthenticated, readFrame(t, conn).Event)
	})
}

func TestHandshakeFailures(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.AuthTimeout = 200 * time.Millisecond
	ts := newTestServer(t, cfg)

	tests := []struct {
		name   string
		query  url.Values
		frame  *AuthenticatePayload
		reason string
	}{
		{
			name:   "user mismatch",
			query:  url.Values{"token": {"token-u1"}},
			frame:  &AuthenticatePayload{UserID: "u2"},
			reason: ReasonUserMismatch,
		},
		{
			name:   "invalid token",
			frame:  &AuthenticatePayload{UserID: "u1", Token: "forged"},
			reason: ReasonInvalidToken,
		},
		{
			name:   "missing token",
			frame:  &AuthenticatePayload{UserID: "u1"},
			reason: ReasonMissingToken,
		},
		{
			name:   "no authenticate frame",
			query:  url.Values{"token": {"token-u1"}},
			reason: ReasonTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := ts.dial(t, tt.query, nil)
			if tt.frame != nil {
				sendFrame(t, conn, domain.EventAuthenticate, tt.frame)
			}

			assert.Equal(t, tt.reason, failureReason(t, readFrame(t, conn)))

			// The server closes the socket after the failure.
			_, _, err := conn.ReadMessage()
			assert.Error(t, err)
		})
	}

	assert.Equal(t, 0, ts.registry.Count())
}

func TestInvalidFrame(t *testing.T) {
	ts := newTestServer(t, testRealtimeConfig())
	conn := ts.dial(t, nil, nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, ReasonInvalidFrame, failureReason(t, readFrame(t, conn)))
}

func TestPushReachesEverySessionOfUser(t *testing.T) {
	ts := newTestServer(t, testRealtimeConfig())

	tabs := []*websocket.Conn{ts.connect(t, "u1"), ts.connect(t, "u1"), ts.connect(t, "u1")}
	other := ts.connect(t, "u2")
	require.Eventually(t, func() bool { return len(ts.registry.Sessions("u1")) == 3 },
		2*time.Second, 10*time.Millisecond)

	push, err := registry.NewPush(domain.PushTaskAssigned, map[string]string{"taskId": "t1"})
	require.NoError(t, err)
	assert.Equal(t, 3, ts.pusher.Deliver(context.Background(), "u1", push))

	for _, conn := range tabs {
		frame := readFrame(t, conn)
		assert.Equal(t, domain.PushTaskAssigned, frame.Event)
		assert.JSONEq(t, `{"taskId":"t1"}`, string(frame.Data))
	}

	// u2 gets nothing within a short window.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	ts := newTestServer(t, testRealtimeConfig())

	conn := ts.connect(t, "u1")
	require.Eventually(t, func() bool { return ts.registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	require.Eventually(t, func() bool { return ts.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Pushing to a user with no sessions is a silent no-op.
	push, err := registry.NewPush(domain.PushCommentNew, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ts.pusher.Deliver(context.Background(), "u1", push))
}

func TestShutdownClosesSessions(t *testing.T) {
	ts := newTestServer(t, testRealtimeConfig())

	conn := ts.connect(t, "u1")
	pending := ts.dial(t, url.Values{"token": {"token-u1"}}, nil)
	require.Eventually(t, func() bool { return ts.registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.handler.Shutdown(ctx))

	assert.Equal(t, 0, ts.registry.Count())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	// The unauthenticated socket is closed too, possibly after a failure frame.
	require.NoError(t, pending.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		if _, _, err = pending.ReadMessage(); err != nil {
			break
		}
	}
	var netErr interface{ Timeout() bool }
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "socket was not closed: %v", err)
}

func TestHandshakeCredentials(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?userId=u1", nil)
	r.Header.Set("Authorization", "Bearer abc")
	c := handshakeCredentials(r)
	assert.Equal(t, credentials{Token: "abc", UserID: "u1"}, c)

	r = httptest.NewRequest(http.MethodGet, "/ws?token=q&userId=u1", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "q", handshakeCredentials(r).Token)

	merged := c.merge(AuthenticatePayload{UserID: "u2", Token: "frame"})
	assert.Equal(t, credentials{Token: "frame", UserID: "u2"}, merged)
}

func TestNewHandlerValidation(t *testing.T) {
	reg := registry.NewInMemoryRegistry(testLogger(), nil)
	_, err := NewHandler(testRealtimeConfig(), nil, reg, testLogger())
	assert.Error(t, err)
	_, err = NewHandler(testRealtimeConfig(), &mocks.MockJWTService{}, nil, testLogger())
	assert.Error(t, err)
}

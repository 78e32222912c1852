package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/tasknotify/internal/client"
	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/events"
	"github.com/phrazzld/tasknotify/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug", ShutdownTimeout: 2 * time.Second},
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret-that-is-at-least-32-characters",
			TokenLifetimeMinutes: 60,
		},
		Broker: config.BrokerConfig{
			Driver:        "memory",
			Stream:        "notifications:events",
			Group:         "notification-service",
			Consumer:      "test",
			BatchSize:     16,
			BlockTimeout:  time.Second,
			ClaimMinIdle:  time.Second,
			ClaimInterval: time.Second,
		},
		Realtime: config.RealtimeConfig{
			Path:             "/ws/notifications",
			Fanout:           "local",
			BroadcastChannel: "notifications:push",
			AuthTimeout:      2 * time.Second,
			SendBuffer:       16,
			WriteTimeout:     time.Second,
			PingInterval:     time.Second,
		},
	}
}

type testApp struct {
	*application
	baseURL string
	store   *mocks.MemoryNotificationStore
}

// startTestApp serves a fully wired application over the memory broker and
// an in-memory store.
func startTestApp(t *testing.T) *testApp {
	t.Helper()

	st := mocks.NewMemoryNotificationStore()
	app, err := newApplication(testConfig(), testLogger(), dependencies{store: st})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("application did not shut down")
		}
	})

	return &testApp{
		application: app,
		baseURL:     "http://" + listener.Addr().String(),
		store:       st,
	}
}

func (ta *testApp) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := ta.jwtService.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	return token
}

func (ta *testApp) adapter(t *testing.T, userID string) *client.Adapter {
	t.Helper()
	a, err := client.New(client.Options{
		ServerURL:  ta.baseURL,
		SocketPath: ta.config.Realtime.Path,
		UserID:     userID,
		Token:      ta.token(t, userID),
		RetryMin:   10 * time.Millisecond,
		RetryMax:   50 * time.Millisecond,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Start(context.Background()))
	return a
}

func TestOperationalEndpoints(t *testing.T) {
	ta := startTestApp(t)

	resp, err := http.Get(ta.baseURL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(ta.baseURL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "notify_sessions_active"))

	resp, err = http.Get(ta.baseURL + "/api/notifications")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEndToEndDelivery(t *testing.T) {
	ta := startTestApp(t)
	ctx := context.Background()

	tab1 := ta.adapter(t, "u1")
	tab2 := ta.adapter(t, "u1")
	other := ta.adapter(t, "u2")
	require.Eventually(t, func() bool { return ta.registry.Count() == 3 }, waitFor, tick)

	producer, err := events.NewProducer(ta.broker, testLogger())
	require.NoError(t, err)
	task := events.Task{ID: "t1", Title: "Write docs", Status: "open"}
	require.NoError(t, producer.TaskAssigned(ctx, "u9", task, []string{"u1"}))

	for _, tab := range []*client.Adapter{tab1, tab2} {
		require.Eventually(t, func() bool { return tab.State().UnreadCount() == 1 }, waitFor, tick)
		items := tab.State().Items()
		require.Len(t, items, 1)
		assert.Equal(t, client.TypeTaskAssigned, items[0].Type)
		assert.Equal(t, "t1", items[0].TaskID)
	}
	assert.Equal(t, 1, ta.store.Len())
	assert.Empty(t, other.State().Items())

	id := tab1.State().Items()[0].ID
	require.NoError(t, tab1.MarkAsRead(ctx, id))
	assert.Equal(t, 0, tab1.State().UnreadCount())
	require.Eventually(t, func() bool { return tab2.State().UnreadCount() == 0 }, waitFor, tick,
		"read state reaches the other tab")

	rest := client.NewRESTClient(ta.baseURL, ta.token(t, "u1"), nil)
	count, err := rest.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEventIngress(t *testing.T) {
	ta := startTestApp(t)
	ctx := context.Background()

	tab := ta.adapter(t, "u1")
	require.Eventually(t, func() bool { return ta.registry.Count() == 1 }, waitFor, tick)

	post := func(token string, body any) *http.Response {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ta.baseURL+"/api/events", bytes.NewReader(raw))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := post(ta.token(t, "u9"), map[string]any{
		"type":        "comment_created",
		"taskId":      "t1",
		"taskTitle":   "Write docs",
		"recipients":  []string{"u1", "u9"},
		"commentId":   "c1",
		"commentBody": "Looks good",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var published struct {
		Published int `json:"published"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&published))
	assert.Equal(t, 1, published.Published, "the actor is not notified")

	require.Eventually(t, func() bool { return tab.State().UnreadCount() == 1 }, waitFor, tick)
	assert.Equal(t, client.TypeNewComment, tab.State().Items()[0].Type)
	assert.Equal(t, 1, ta.store.Len())

	resp = post(ta.token(t, "u9"), map[string]any{
		"type": "TASK_DELETED", "taskId": "t1", "taskTitle": "x", "recipients": []string{"u1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post("not-a-token", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIngressFollowsBrokerDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Driver = "redis"
	assert.False(t, cfg.IngressEnabled())

	cfg = testConfig()
	app, err := newApplication(cfg, testLogger(), dependencies{store: mocks.NewMemoryNotificationStore()})
	require.NoError(t, err)
	assert.NotNil(t, app.producer)
}

func TestReconnectedClientCatchesUp(t *testing.T) {
	ta := startTestApp(t)
	ctx := context.Background()

	producer, err := events.NewProducer(ta.broker, testLogger())
	require.NoError(t, err)
	task := events.Task{ID: "t1", Title: "Write docs", Status: "open"}
	require.NoError(t, producer.TaskCreated(ctx, "u9", task, []string{"u1"}))
	require.Eventually(t, func() bool { return ta.store.Len() == 1 }, waitFor, tick)

	tab := ta.adapter(t, "u1")
	require.Eventually(t, func() bool { return len(tab.State().Items()) == 1 }, waitFor, tick,
		"notifications stored while offline are fetched after authentication")
	assert.Equal(t, client.TypeStatusChanged, tab.State().Items()[0].Type)
}

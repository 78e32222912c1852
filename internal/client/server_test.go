package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/mocks"
	"github.com/phrazzld/tasknotify/internal/realtime"
	"github.com/phrazzld/tasknotify/internal/registry"
	"github.com/phrazzld/tasknotify/internal/service/auth"
	"github.com/stretchr/testify/require"
)

const socketPath = "/ws/notifications"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer serves the realtime endpoint for real and a scripted REST
// surface.
type fakeServer struct {
	*httptest.Server
	registry *registry.InMemoryRegistry
	pusher   *realtime.LocalPusher

	authCalls atomic.Int32
	listCalls atomic.Int32

	mu        sync.Mutex
	items     []*domain.Notification
	failWrite bool
	markedIDs []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{}
	tokens := mocks.TokenMap(map[string]string{"token-u1": "u1"})
	jwt := &mocks.MockJWTService{
		ValidateTokenFn: func(ctx context.Context, token string) (*auth.Claims, error) {
			fs.authCalls.Add(1)
			return tokens(ctx, token)
		},
	}

	fs.registry = registry.NewInMemoryRegistry(testLogger(), nil)
	fs.pusher = realtime.NewLocalPusher(fs.registry, testLogger())
	handler, err := realtime.NewHandler(config.RealtimeConfig{
		Path:             socketPath,
		Fanout:           "local",
		BroadcastChannel: "notifications:push",
		AuthTimeout:      2 * time.Second,
		SendBuffer:       16,
		WriteTimeout:     time.Second,
		PingInterval:     time.Second,
	}, jwt, fs.registry, testLogger())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Handle(socketPath, handler)
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(fs.requireToken)
		r.Get("/", fs.list)
		r.Post("/read-all", fs.markAll)
		r.Post("/{id}/read", fs.markOne)
	})

	fs.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = handler.Shutdown(ctx)
		fs.Close()
	})
	return fs
}

func (fs *fakeServer) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-u1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token", "trace_id": "trace-1"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fs *fakeServer) list(w http.ResponseWriter, r *http.Request) {
	fs.listCalls.Add(1)
	fs.mu.Lock()
	items := append([]*domain.Notification{}, fs.items...)
	fs.mu.Unlock()

	var unread int64
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{"page": 1, "limit": 50, "total": len(items), "unreadCount": unread},
	})
}

func (fs *fakeServer) markOne(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failWrite {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to mark notification as read"})
		return
	}
	fs.markedIDs = append(fs.markedIDs, chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fakeServer) markAll(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failWrite {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to mark notifications as read"})
		return
	}
	var n int64
	for _, item := range fs.items {
		if !item.IsRead {
			item.IsRead = true
			n++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (fs *fakeServer) seed(n *domain.Notification) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.items = append([]*domain.Notification{n}, fs.items...)
}

func (fs *fakeServer) setFailWrite(fail bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failWrite = fail
}

func (fs *fakeServer) push(t *testing.T, userID, event string, data any) {
	t.Helper()
	p, err := registry.NewPush(event, data)
	require.NoError(t, err)
	fs.pusher.PushToUser(context.Background(), userID, p)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notification(userID string, typ domain.EventType, title string) *domain.Notification {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		TaskID:    "t1",
		Type:      typ,
		Title:     title,
		Message:   title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/tasknotify/internal/domain"
)

// Cache keys invalidated on every notification push.
const (
	KeyNotifications = "notifications"
	KeyTasks         = "tasks"
)

// Invalidator drops cached query results so dependent views refetch.
type Invalidator interface {
	Invalidate(keys ...string)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(keys ...string)

// Invalidate calls f(keys...).
func (f InvalidatorFunc) Invalidate(keys ...string) {
	f(keys...)
}

// Options configures an Adapter.
type Options struct {
	// ServerURL is the http(s) base URL of the notification service.
	ServerURL  string
	SocketPath string
	UserID     string
	Token      string

	MaxRetries  int
	RetryMin    time.Duration
	RetryMax    time.Duration
	AuthTimeout time.Duration
	PingTimeout time.Duration
	// RefetchLimit is the page size fetched after each authentication.
	RefetchLimit int

	HTTPClient  *http.Client
	Invalidator Invalidator
	OnWarning   func(error)
	Logger      *slog.Logger
}

// Adapter binds a realtime connection, the REST client and the local state
// for one user.
type Adapter struct {
	opts   Options
	conn   *Conn
	rest   *RESTClient
	state  *State
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string]map[int]func(json.RawMessage)
	nextID    int
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	runErr    error
}

// New creates an Adapter. Start opens the connection.
func New(opts Options) (*Adapter, error) {
	if opts.ServerURL == "" {
		return nil, errors.New("server url cannot be empty")
	}
	if opts.SocketPath == "" {
		opts.SocketPath = "/ws/notifications"
	}
	if opts.RefetchLimit <= 0 {
		opts.RefetchLimit = 50
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	wsURL, err := socketURL(opts.ServerURL, opts.SocketPath)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		opts:      opts,
		rest:      NewRESTClient(opts.ServerURL, opts.Token, opts.HTTPClient),
		state:     NewState(),
		logger:    opts.Logger.With("component", "notification_client"),
		listeners: make(map[string]map[int]func(json.RawMessage)),
	}

	a.conn, err = NewConn(ConnConfig{
		URL:         wsURL,
		UserID:      opts.UserID,
		Token:       opts.Token,
		MaxRetries:  opts.MaxRetries,
		RetryMin:    opts.RetryMin,
		RetryMax:    opts.RetryMax,
		AuthTimeout: opts.AuthTimeout,
		PingTimeout: opts.PingTimeout,
	}, ConnHooks{
		OnAuthenticated: a.refetch,
		OnFrame:         a.dispatch,
		OnWarning:       opts.OnWarning,
	}, opts.Logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func socketURL(serverURL, path string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// Start runs the connection in the background until Close.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.done != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		err := a.conn.Run(ctx)
		a.mu.Lock()
		a.runErr = err
		a.mu.Unlock()
	}()
	return nil
}

// Done is closed when the connection goroutine stops, either after Close or
// because reconnecting gave up.
func (a *Adapter) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.done
}

// Err returns why the connection goroutine stopped, or nil.
func (a *Adapter) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runErr
}

// State returns the local notification state.
func (a *Adapter) State() *State {
	return a.state
}

// ConnState returns the current connection state.
func (a *Adapter) ConnState() ConnState {
	return a.conn.State()
}

// On registers fn for a pushed event name. Listeners run after the local
// state has been updated. The returned func unsubscribes.
func (a *Adapter) On(event string, fn func(json.RawMessage)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listeners[event] == nil {
		a.listeners[event] = make(map[int]func(json.RawMessage))
	}
	id := a.nextID
	a.nextID++
	a.listeners[event][id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners[event], id)
	}
}

// MarkAsRead marks a notification as read on the server and, once the
// server acknowledges, locally.
func (a *Adapter) MarkAsRead(ctx context.Context, id string) error {
	if err := a.rest.MarkAsRead(ctx, id); err != nil {
		return err
	}
	a.state.MarkRead(id)
	return nil
}

// MarkAllAsRead marks every notification as read on the server and then
// locally.
func (a *Adapter) MarkAllAsRead(ctx context.Context) error {
	if _, err := a.rest.MarkAllAsRead(ctx); err != nil {
		return err
	}
	a.state.MarkAllRead()
	return nil
}

// Refresh replaces the local state with the newest page from the server.
func (a *Adapter) Refresh(ctx context.Context) error {
	page, err := a.rest.List(ctx, ListParams{Limit: a.opts.RefetchLimit})
	if err != nil {
		return err
	}
	a.state.Replace(page.Items)
	return nil
}

// Close stops the connection and any pending reconnect and drops all
// listeners and state subscribers.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, done := a.cancel, a.done
	a.listeners = make(map[string]map[int]func(json.RawMessage))
	a.mu.Unlock()

	a.state.clearSubscribers()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (a *Adapter) refetch(ctx context.Context) {
	if err := a.Refresh(ctx); err != nil {
		a.logger.Warn("failed to refetch notifications after authentication", "error", err)
		return
	}
	a.invalidate()
}

func (a *Adapter) dispatch(frame Frame) {
	switch {
	case frame.Event == domain.PushNotificationRead:
		var payload domain.ReadPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.ID == "" {
			a.logger.Warn("discarding malformed read push", "error", err)
			return
		}
		a.state.MarkRead(payload.ID)
		a.invalidate()

	case frame.Event == domain.PushNotificationsReadAll:
		a.state.MarkAllRead()
		a.invalidate()

	case IsNotificationEvent(frame.Event):
		view, err := Normalize(frame.Event, frame.Data)
		if err != nil {
			a.logger.Warn("discarding notification push", "event", frame.Event, "error", err)
			return
		}
		a.state.Apply(view)
		a.invalidate()
	}

	a.emit(frame)
}

func (a *Adapter) invalidate() {
	if a.opts.Invalidator != nil {
		a.opts.Invalidator.Invalidate(KeyNotifications, KeyTasks)
	}
}

func (a *Adapter) emit(frame Frame) {
	a.mu.RLock()
	fns := make([]func(json.RawMessage), 0, len(a.listeners[frame.Event]))
	for _, fn := range a.listeners[frame.Event] {
		fns = append(fns, fn)
	}
	a.mu.RUnlock()

	for _, fn := range fns {
		fn(frame.Data)
	}
}

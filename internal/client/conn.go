package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/phrazzld/tasknotify/internal/domain"
)

// ConnState is the client side of the connection state machine.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Frame is one message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type authenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type failurePayload struct {
	Reason string `json:"reason"`
}

// ConnConfig configures a Conn.
type ConnConfig struct {
	// URL is the ws:// or wss:// socket endpoint.
	URL    string
	UserID string
	Token  string

	// MaxRetries bounds consecutive failed connection attempts after the
	// first one.
	MaxRetries  int
	RetryMin    time.Duration
	RetryMax    time.Duration
	AuthTimeout time.Duration
	// PingTimeout is how long an authenticated connection may stay silent,
	// pings included, before it is treated as lost. Keep it above the
	// server's ping interval.
	PingTimeout time.Duration
	Dialer      *websocket.Dialer
}

func (c *ConnConfig) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryMin <= 0 {
		c.RetryMin = 500 * time.Millisecond
	}
	if c.RetryMax < c.RetryMin {
		c.RetryMax = 10 * time.Second
		if c.RetryMax < c.RetryMin {
			c.RetryMax = c.RetryMin
		}
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 60 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// ConnHooks are callbacks run on the connection goroutine.
type ConnHooks struct {
	// OnAuthenticated runs after every successful authentication, before any
	// pushed frame of that connection is dispatched.
	OnAuthenticated func(ctx context.Context)
	OnFrame         func(Frame)
	OnState         func(ConnState)
	// OnWarning reports non-fatal connectivity problems: a rejected
	// credential or an exhausted retry budget.
	OnWarning func(error)
}

// Conn keeps one authenticated socket open, reconnecting with backoff.
type Conn struct {
	cfg    ConnConfig
	hooks  ConnHooks
	logger *slog.Logger

	mu    sync.RWMutex
	state ConnState
}

// NewConn creates a Conn. It does not connect until Run is called.
func NewConn(cfg ConnConfig, hooks ConnHooks, logger *slog.Logger) (*Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("socket url cannot be empty")
	}
	if cfg.UserID == "" || cfg.Token == "" {
		return nil, errors.New("user id and token are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	return &Conn{
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.With("component", "realtime_conn", "user_id", cfg.UserID),
	}, nil
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}

func (c *Conn) warn(err error) {
	c.logger.Warn("realtime connectivity warning", "error", err)
	if c.hooks.OnWarning != nil {
		c.hooks.OnWarning(err)
	}
}

// Run connects and keeps the connection alive until ctx is cancelled, the
// server rejects the credential, or the retry budget is spent. Cancellation
// returns nil.
func (c *Conn) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	retry := &backoff.Backoff{Min: c.cfg.RetryMin, Max: c.cfg.RetryMax, Factor: 2, Jitter: true}
	failures := 0

	for {
		ws, err := c.connect(ctx)
		if err == nil {
			failures = 0
			retry.Reset()

			if c.hooks.OnAuthenticated != nil {
				c.hooks.OnAuthenticated(ctx)
			}
			err = c.readLoop(ctx, ws)
		}

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuthenticationFailed) {
			c.warn(err)
			return err
		}

		failures++
		if failures > c.cfg.MaxRetries {
			exhausted := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, failures, err)
			c.warn(exhausted)
			return exhausted
		}

		c.setState(StateDisconnected)
		delay := retry.Duration()
		c.logger.Info("reconnecting",
			"attempt", failures,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connect dials and performs the authenticate handshake. Credentials are
// sent on every attempt.
func (c *Conn) connect(ctx context.Context) (*websocket.Conn, error) {
	c.setState(StateConnecting)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)
	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.setState(StateAuthenticating)

	data, err := json.Marshal(authenticatePayload{UserID: c.cfg.UserID, Token: c.cfg.Token})
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.AuthTimeout))
	if err := ws.WriteJSON(Frame{Event: domain.EventAuthenticate, Data: data}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send authenticate: %w", err)
	}
	_ = ws.SetWriteDeadline(time.Time{})

	_ = ws.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("await authentication: %w", err)
		}

		switch frame.Event {
		case domain.EventAuthenticated:
			_ = ws.SetReadDeadline(time.Time{})
			c.setState(StateAuthenticated)
			c.logger.Debug("authenticated")
			return ws, nil
		case domain.EventAuthenticationFailed:
			var failure failurePayload
			_ = json.Unmarshal(frame.Data, &failure)
			_ = ws.Close()
			return nil, &AuthError{Reason: failure.Reason}
		default:
			c.logger.Debug("ignoring frame before authentication", "event", frame.Event)
		}
	}
}

// readLoop dispatches frames until the connection fails or ctx is
// cancelled.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer func() {
		stop()
		_ = ws.Close()
	}()

	extend := func() { _ = ws.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout)) }
	extend()
	ws.SetPingHandler(func(appData string) error {
		extend()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		extend()

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.logger.Warn("discarding malformed frame", "error", err)
			continue
		}
		if c.hooks.OnFrame != nil {
			c.hooks.OnFrame(frame)
		}
	}
}

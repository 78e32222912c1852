package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/metrics"
	"github.com/phrazzld/tasknotify/internal/platform/logger"
	"github.com/phrazzld/tasknotify/internal/registry"
	"github.com/phrazzld/tasknotify/internal/service/auth"
)

const maxFrameSize = 8 << 10

// Handshake failure reasons sent in authentication_failed.
const (
	ReasonTimeout       = "authentication timeout"
	ReasonMissingToken  = "missing token"
	ReasonInvalidToken  = "invalid token"
	ReasonExpiredToken  = "token expired"
	ReasonUserMismatch  = "user mismatch"
	ReasonInvalidFrame  = "invalid authenticate frame"
	ReasonServerClosing = "server shutting down"

	reasonConnectionLost = "connection lost"
)

// AuthenticatePayload is the data of the client's authenticate frame. Token
// may be omitted when it was supplied on the upgrade request.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// AuthenticatedPayload is the data of the authenticated frame.
type AuthenticatedPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// FailurePayload is the data of the authentication_failed frame.
type FailurePayload struct {
	Reason string `json:"reason"`
}

// Handler serves the notification socket endpoint.
type Handler struct {
	cfg      config.RealtimeConfig
	jwt      auth.JWTService
	registry registry.Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[*session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewHandler creates the socket endpoint handler.
func NewHandler(
	cfg config.RealtimeConfig,
	jwtService auth.JWTService,
	reg registry.Registry,
	logger *slog.Logger,
) (*Handler, error) {
	if jwtService == nil {
		return nil, errors.New("jwt service cannot be nil")
	}
	if reg == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		cfg:      cfg,
		jwt:      jwtService,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Sessions authenticate with a bearer token, not cookies.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		logger:   logger.With("component", "realtime"),
		now:      time.Now,
		sessions: make(map[*session]struct{}),
	}, nil
}

// ServeHTTP upgrades the connection and runs the session until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handshake := handshakeCredentials(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("socket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s := newSession(conn, h.cfg.SendBuffer, h.logger)
	if !h.track(s) {
		h.reject(s, ReasonServerClosing)
		return
	}
	defer h.untrack(s)

	s.transition(registry.StateAuthenticating)
	s.logger.Debug("socket connected", "remote_addr", r.RemoteAddr)

	ctx := logger.WithLogger(r.Context(), s.logger)
	userID, reason := h.awaitAuthentication(ctx, s, handshake)
	if reason == reasonConnectionLost {
		s.logger.Debug("socket closed before authenticating")
		_ = s.Close()
		_ = conn.Close()
		return
	}
	if reason != "" {
		metrics.AuthFailures.Inc()
		s.logger.Warn("socket authentication failed",
			"reason", reason,
			"claimed_user_id", handshake.UserID,
			"remote_addr", r.RemoteAddr)
		h.reject(s, reason)
		return
	}

	if !s.authenticate(userID, h.now().UTC()) {
		// Closed by shutdown while authenticating.
		_ = conn.Close()
		return
	}
	s.logger = s.logger.With("user_id", userID)

	ack, _ := registry.NewPush(domain.EventAuthenticated, AuthenticatedPayload{UserID: userID, SessionID: s.ID()})
	_ = conn.SetWriteDeadline(h.now().Add(h.cfg.WriteTimeout))
	if err := conn.WriteJSON(ack); err != nil {
		s.logger.Debug("failed to acknowledge authentication", "error", err)
		_ = s.Close()
		_ = conn.Close()
		return
	}

	h.registry.Register(s)
	defer h.registry.Unregister(s)

	go s.writePump(h.cfg.WriteTimeout, h.cfg.PingInterval)
	h.readPump(s)
	_ = s.Close()
	s.logger.Debug("socket disconnected")
}

// Shutdown closes every open session and waits for their handlers to return
// or ctx to expire. New connections are rejected afterwards.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		authed := s.State() == registry.StateAuthenticated
		_ = s.Close()
		if !authed {
			// No write pump yet; unblock the handshake read.
			_ = s.conn.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) track(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.wg.Done()
}

// awaitAuthentication reads frames until an authenticate frame arrives or the
// auth timeout passes. It returns the authenticated user id, or a failure
// reason.
func (h *Handler) awaitAuthentication(ctx context.Context, s *session, handshake credentials) (string, string) {
	_ = s.conn.SetReadDeadline(h.now().Add(h.cfg.AuthTimeout))

	for {
		var frame registry.Push
		if err := s.conn.ReadJSON(&frame); err != nil {
			var (
				netErr    interface{ Timeout() bool }
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				return "", ReasonTimeout
			case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
				return "", ReasonInvalidFrame
			default:
				return "", reasonConnectionLost
			}
		}
		if frame.Event != domain.EventAuthenticate {
			s.logger.Debug("ignoring frame before authentication", "event", frame.Event)
			continue
		}

		var payload AuthenticatePayload
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				return "", ReasonInvalidFrame
			}
		}
		return h.verify(ctx, handshake.merge(payload))
	}
}

func (h *Handler) verify(ctx context.Context, creds credentials) (string, string) {
	if creds.Token == "" {
		return "", ReasonMissingToken
	}
	claims, err := h.jwt.ValidateToken(ctx, creds.Token)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "", ReasonExpiredToken
	case err != nil:
		return "", ReasonInvalidToken
	}
	if creds.UserID != "" && creds.UserID != claims.UserID {
		return "", ReasonUserMismatch
	}
	return claims.UserID, ""
}

// reject sends authentication_failed and closes the connection. The write
// pump is not running, so writing directly is safe.
func (h *Handler) reject(s *session, reason string) {
	s.transition(registry.StateDisconnected)
	deadline := h.now().Add(h.cfg.WriteTimeout)

	failure, _ := registry.NewPush(domain.EventAuthenticationFailed, FailurePayload{Reason: reason})
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteJSON(failure); err == nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	}
	_ = s.Close()
	_ = s.conn.Close()
}

// readPump keeps the read side alive so pongs and close frames are
// processed. Client frames after authentication are ignored.
func (h *Handler) readPump(s *session) {
	pongWait := 2 * h.cfg.PingInterval
	_ = s.conn.SetReadDeadline(h.now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(h.now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("socket closed unexpectedly", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(h.now().Add(pongWait))
	}
}

// credentials are the token and claimed user id of a connection attempt.
type credentials struct {
	Token  string
	UserID string
}

// merge overlays the authenticate frame on the upgrade request credentials.
func (c credentials) merge(p AuthenticatePayload) credentials {
	if p.Token != "" {
		c.Token = p.Token
	}
	if p.UserID != "" {
		c.UserID = p.UserID
	}
	return c
}

// handshakeCredentials reads the token from the query string or the
// Authorization header, and the claimed user id from the query string.
func handshakeCredentials(r *http.Request) credentials {
	q := r.URL.Query()
	c := credentials{
		Token:  q.Get("token"),
		UserID: q.Get("userId"),
	}
	if c.Token == "" {
		header := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			c.Token = strings.TrimSpace(token)
		}
	}
	return c
}

package admission

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cueroom/realtime/internal/errs"
	"github.com/cueroom/realtime/internal/notify"
	"github.com/cueroom/realtime/internal/room"
)

// Limits are the per-minute sliding-window thresholds.
type Limits struct {
	ConnectionsPerWindow int
	MessagesPerWindow    int
	EventsPerWindow      int
	Window               time.Duration
}

// DefaultLimits returns the standard thresholds: 60 admissions, 120
// messages and 180 events per rolling minute.
func DefaultLimits() Limits {
	return Limits{
		ConnectionsPerWindow: 60,
		MessagesPerWindow:    120,
		EventsPerWindow:      180,
		Window:               time.Minute,
	}
}

// RoleLookup resolves extra roles for a user, supplied by the hosting
// layer. May be nil; token roles always apply.
type RoleLookup func(userID string) []string

// Admitter is the admission gate. It verifies tokens, enforces rate
// limits, authorizes actions and owns the full teardown of a connection.
type Admitter struct {
	verifier TokenVerifier
	registry *room.Registry
	hub      *notify.Hub
	logger   *slog.Logger
	limits   Limits
	roles    RoleLookup

	mu          sync.Mutex
	conns       map[string]*Connection
	connWindows map[string]*slidingWindow // user id -> admission window
	actionRoles map[string]string         // action -> required role

	now func() time.Time
}

// NewAdmitter creates an admission gate over the registry and hub.
func NewAdmitter(verifier TokenVerifier, registry *room.Registry, hub *notify.Hub, limits Limits, logger *slog.Logger) *Admitter {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.Window <= 0 {
		limits = DefaultLimits()
	}
	return &Admitter{
		verifier:    verifier,
		registry:    registry,
		hub:         hub,
		logger:      logger,
		limits:      limits,
		conns:       make(map[string]*Connection),
		connWindows: make(map[string]*slidingWindow),
		actionRoles: make(map[string]string),
		now:         time.Now,
	}
}

// SetRoleLookup wires the host-supplied user role lookup.
func (a *Admitter) SetRoleLookup(lookup RoleLookup) {
	a.roles = lookup
}

// RequireRole marks an action as requiring the given role. Actions with no
// requirement are open to every admitted connection.
func (a *Admitter) RequireRole(action, role string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actionRoles[action] = role
}

// Admit verifies the token and creates a connection with fresh
// sliding-window counters. Fails with AUTH_FAILED on an invalid or
// unverifiable token and RATE_LIMITED when the user's admission rate is
// exceeded; no connection is ever returned for a failed admission.
func (a *Admitter) Admit(connID, userID, token string) (*Connection, error) {
	if !a.admissionWindow(userID).allow() {
		a.logger.Warn("admission rate limited", "user_id", userID)
		return nil, errs.Newf(errs.CodeRateLimited,
			"Rate limit exceeded: too many connections for user %q", userID)
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		a.logger.Warn("authentication failed", "conn_id", connID, "user_id", userID, "error", err)
		return nil, errs.New(errs.CodeAuthFailed, "Authentication failed")
	}
	if claims.UserID != userID {
		a.logger.Warn("token subject mismatch", "conn_id", connID, "user_id", userID, "subject", claims.UserID)
		return nil, errs.New(errs.CodeAuthFailed, "Authentication failed")
	}

	conn := &Connection{
		ID:            connID,
		UserID:        userID,
		roles:         claims.Roles,
		msgWindow:     newSlidingWindow(a.limits.MessagesPerWindow, a.limits.Window),
		eventWindow:   newSlidingWindow(a.limits.EventsPerWindow, a.limits.Window),
		authenticated: true,
		connected:     true,
		rooms:         make(map[string]struct{}),
		admittedAt:    a.now(),
	}

	a.mu.Lock()
	old := a.conns[connID]
	a.conns[connID] = conn
	a.mu.Unlock()

	// A reused connection id replaces the previous connection outright.
	if old != nil {
		a.teardown(old)
	}

	a.logger.Info("connection admitted", "conn_id", connID, "user_id", userID)
	return conn, nil
}

// AttachTransport binds the carrier for SendMessage/Disconnect.
func (a *Admitter) AttachTransport(conn *Connection, t Transport) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.transport = t
}

// Get returns the live connection for connID.
func (a *Admitter) Get(connID string) (*Connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.conns[connID]
	return c, ok
}

// CheckMessage counts one message against the connection's message window.
// Fails with RATE_LIMITED when the rolling threshold is exceeded.
func (a *Admitter) CheckMessage(conn *Connection) error {
	if !conn.msgWindow.allow() {
		return errs.Newf(errs.CodeRateLimited,
			"Rate limit exceeded: %d messages per window", conn.msgWindow.limit)
	}
	return nil
}

// CheckEvent counts one non-message event send against the event window.
func (a *Admitter) CheckEvent(conn *Connection) error {
	if !conn.eventWindow.allow() {
		return errs.Newf(errs.CodeRateLimited,
			"Rate limit exceeded: %d events per window", conn.eventWindow.limit)
	}
	return nil
}

// Authorize fails with AUTHZ_FAILED when action requires a role the
// connection's user lacks.
func (a *Admitter) Authorize(conn *Connection, action string) error {
	a.mu.Lock()
	required, ok := a.actionRoles[action]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	if conn.hasRole(required) {
		return nil
	}
	if a.roles != nil {
		for _, r := range a.roles(conn.UserID) {
			if r == required {
				return nil
			}
		}
	}

	a.logger.Warn("action not authorized",
		"conn_id", conn.ID,
		"user_id", conn.UserID,
		"action", action,
		"required_role", required,
	)
	return errs.Newf(errs.CodeAuthzFailed, "action %q requires role %q", action, required)
}

// JoinRoom admits the connection's user into a room and tracks the
// membership for teardown.
func (a *Admitter) JoinRoom(conn *Connection, roomID string) error {
	if err := a.registry.AddMember(roomID, conn.UserID); err != nil {
		return err
	}
	conn.trackRoom(roomID)
	return nil
}

// LeaveRoom removes the connection's user from a room.
func (a *Admitter) LeaveRoom(conn *Connection, roomID string) error {
	if err := a.registry.RemoveMember(roomID, conn.UserID); err != nil {
		return err
	}
	conn.untrackRoom(roomID)
	return nil
}

// Revoke tears down the connection: membership removed from every room it
// joined, every owned subscription destroyed, limiter state released. No
// notification is delivered to it afterwards and no broadcast counts it as
// a member. Revoking an unknown id is a no-op.
func (a *Admitter) Revoke(connID string) {
	a.mu.Lock()
	conn, ok := a.conns[connID]
	delete(a.conns, connID)
	a.mu.Unlock()

	if !ok {
		return
	}
	a.teardown(conn)
	a.logger.Info("connection revoked", "conn_id", connID, "user_id", conn.UserID)
}

// ConnectionCount returns the number of live connections.
func (a *Admitter) ConnectionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

func (a *Admitter) teardown(conn *Connection) {
	// Subscriptions first so nothing enqueued during membership removal is
	// ever observed by the dead connection.
	a.hub.UnsubscribeOwner(conn.ID)

	for _, roomID := range conn.Rooms() {
		_ = a.registry.RemoveMember(roomID, conn.UserID)
	}

	_ = conn.Disconnect()
}

func (a *Admitter) admissionWindow(userID string) *slidingWindow {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.connWindows[userID]
	if !ok {
		w = newSlidingWindow(a.limits.ConnectionsPerWindow, a.limits.Window)
		a.connWindows[userID] = w
	}
	return w
}

package admission

import (
	"sync"
	"time"
)

// Transport is the capability set a connection's carrier must provide.
// The websocket gateway implements it in production; tests use an
// in-memory double. Nothing in the core behaves differently between them.
type Transport interface {
	SendMessage(event string, data []byte) error
	Disconnect() error
}

// Connection is an admitted client. Owned exclusively by the admitter;
// rooms reference its user id, never the connection itself.
type Connection struct {
	ID     string
	UserID string

	transport Transport
	roles     []string

	msgWindow   *slidingWindow
	eventWindow *slidingWindow

	mu            sync.Mutex
	authenticated bool
	connected     bool
	rooms         map[string]struct{}
	admittedAt    time.Time
}

// IsAuthenticated reports whether the connection passed token verification.
// Always true for a connection returned by Admit; false after revoke.
func (c *Connection) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// IsConnected reports whether the connection is live.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Roles returns the roles carried by the connection's token.
func (c *Connection) Roles() []string {
	out := make([]string, len(c.roles))
	copy(out, c.roles)
	return out
}

// Rooms returns the ids of rooms joined through this connection.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// SendMessage forwards to the transport, if one is attached.
func (c *Connection) SendMessage(event string, data []byte) error {
	c.mu.Lock()
	t := c.transport
	connected := c.connected
	c.mu.Unlock()

	if !connected || t == nil {
		return nil
	}
	return t.SendMessage(event, data)
}

// Disconnect closes the transport and marks the connection dead. Limiter
// and subscription state is released by Admitter.Revoke, which calls this.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	t := c.transport
	wasConnected := c.connected
	c.connected = false
	c.authenticated = false
	c.mu.Unlock()

	if wasConnected && t != nil {
		return t.Disconnect()
	}
	return nil
}

func (c *Connection) trackRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Connection) untrackRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *Connection) hasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient wraps one websocket connection and implements the transport
// capability set admission expects.
type wsClient struct {
	conn *websocket.Conn

	writeTimeout time.Duration

	// Write serialization
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn, writeTimeout time.Duration) *wsClient {
	return &wsClient{conn: conn, writeTimeout: writeTimeout}
}

// SendMessage writes a server frame carrying event and a JSON data
// payload.
func (c *wsClient) SendMessage(event string, data []byte) error {
	var payload map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
	}
	return c.writeFrame(serverFrame{Type: "notification", Event: event, Data: payload})
}

// Disconnect closes the websocket with a normal closure frame.
func (c *wsClient) Disconnect() error {
	return c.close(websocket.CloseNormalClosure, "")
}

func (c *wsClient) writeFrame(frame serverFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsClient) close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.writeTimeout))
	c.writeMu.Unlock()

	return c.conn.Close()
}

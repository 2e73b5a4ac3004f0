package gateway

// clientFrame is a message from client to server.
type clientFrame struct {
	Type    string         `json:"type"`
	Room    string         `json:"room,omitempty"`
	Event   string         `json:"event,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	State   string         `json:"state,omitempty"`
}

// Client frame types.
const (
	frameJoin        = "join"
	frameLeave       = "leave"
	frameBroadcast   = "broadcast"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameCreateRoom  = "create_room"
	frameUpdateState = "update_state"
	frameStats       = "stats"
	framePing        = "ping"
)

// serverFrame is a message from server to client.
type serverFrame struct {
	Type  string         `json:"type"`
	Event string         `json:"event,omitempty"`
	Room  string         `json:"room,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Error *frameError    `json:"error,omitempty"`
}

// frameError carries a stable error code; clients branch on Code, not on
// the message text.
type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

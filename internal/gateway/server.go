package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cueroom/realtime/internal/admission"
	"github.com/cueroom/realtime/internal/broadcast"
	"github.com/cueroom/realtime/internal/errs"
	"github.com/cueroom/realtime/internal/metrics"
	"github.com/cueroom/realtime/internal/notify"
	"github.com/cueroom/realtime/internal/room"
)

// Config holds gateway transport settings.
type Config struct {
	PingTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	Transport    string // hint echoed to clients; logic does not depend on it
}

// Server serves the websocket endpoint over the room core.
type Server struct {
	cfg         Config
	admitter    *admission.Admitter
	registry    *room.Registry
	broadcaster *broadcast.Broadcaster
	hub         *notify.Hub
	collector   *metrics.Collector
	logger      *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer creates a gateway over the core services. Admin-only frames
// are registered against the admitter's authorization table here.
func NewServer(cfg Config, admitter *admission.Admitter, registry *room.Registry, broadcaster *broadcast.Broadcaster, hub *notify.Hub, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	admitter.RequireRole(frameCreateRoom, "admin")
	admitter.RequireRole(frameUpdateState, "admin")

	return &Server{
		cfg:         cfg,
		admitter:    admitter,
		registry:    registry,
		broadcaster: broadcaster,
		hub:         hub,
		collector:   collector,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
// The client authenticates via query parameters (user_id, token); a failed
// admission closes the socket with policy code 1008.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(ws, s.cfg.WriteTimeout)
	connID := uuid.NewString()
	userID := r.URL.Query().Get("user_id")
	token := r.URL.Query().Get("token")

	conn, err := s.admitter.Admit(connID, userID, token)
	if err != nil {
		var typed *errs.Error
		if !errors.As(err, &typed) {
			typed = errs.New(errs.CodeAuthFailed, "Authentication failed")
		}
		s.logger.Warn("admission refused", "user_id", userID, "code", typed.Code)
		// The close reason carries the stable code so clients can tell a
		// bad token apart from a connection rate limit.
		client.close(websocket.ClosePolicyViolation, typed.Error())
		return
	}
	s.admitter.AttachTransport(conn, client)

	client.writeFrame(serverFrame{Type: "connected", Data: map[string]any{
		"connection_id": connID,
		"transport":     s.cfg.Transport,
	}})

	sess := &session{
		server: s,
		conn:   conn,
		client: client,
		subs:   make(map[string]*notify.Subscription),
	}
	sess.run(ws)
}

// session is the per-connection read loop state.
type session struct {
	server *Server
	conn   *admission.Connection
	client *wsClient

	mu   sync.Mutex
	subs map[string]*notify.Subscription // room id -> subscription
	wg   sync.WaitGroup
}

func (ss *session) run(ws *websocket.Conn) {
	s := ss.server

	ws.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout))
		return nil
	})

	stopPing := make(chan struct{})
	go ss.pingLoop(stopPing)

	defer func() {
		close(stopPing)
		ss.teardown()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection dropped", "conn_id", ss.conn.ID, "error", err)
			}
			return
		}

		timer := s.collector.StartTimer()

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			ss.sendError(errs.New(errs.CodeInvalidMessage, "Invalid message payload"))
			s.collector.RecordError()
			continue
		}

		if err := ss.handle(frame); err != nil {
			ss.sendError(err)
			s.collector.RecordError()
		}

		s.collector.EndTimer(timer)
	}
}

func (ss *session) handle(frame clientFrame) error {
	s := ss.server

	// Broadcasts count against the message window; every other frame type
	// counts against the event window. Pings are free.
	switch frame.Type {
	case frameBroadcast:
		if err := s.admitter.CheckMessage(ss.conn); err != nil {
			return err
		}
	case framePing:
	default:
		if err := s.admitter.CheckEvent(ss.conn); err != nil {
			return err
		}
	}

	switch frame.Type {
	case framePing:
		return ss.client.writeFrame(serverFrame{Type: "pong"})

	case frameJoin:
		if err := s.admitter.JoinRoom(ss.conn, frame.Room); err != nil {
			return err
		}
		return ss.ack("joined", frame.Room)

	case frameLeave:
		if err := s.admitter.LeaveRoom(ss.conn, frame.Room); err != nil {
			return err
		}
		return ss.ack("left", frame.Room)

	case frameSubscribe:
		ss.subscribe(frame.Room)
		return ss.ack("subscribed", frame.Room)

	case frameUnsubscribe:
		ss.unsubscribe(frame.Room)
		return ss.ack("unsubscribed", frame.Room)

	case frameBroadcast:
		if err := s.broadcaster.Broadcast(frame.Room, frame.Message, frame.Data); err != nil {
			return err
		}
		return ss.ack("broadcast_ok", frame.Room)

	case frameCreateRoom:
		if err := s.admitter.Authorize(ss.conn, frameCreateRoom); err != nil {
			return err
		}
		typ, _ := frame.Data["room_type"].(string)
		created, err := s.registry.CreateRoom(frame.Room, room.Type(typ))
		if err != nil {
			return err
		}
		return ss.client.writeFrame(serverFrame{Type: "room_created", Room: created.ID, Data: map[string]any{
			"room_type": string(created.Type),
			"state":     string(created.State),
		}})

	case frameUpdateState:
		if err := s.admitter.Authorize(ss.conn, frameUpdateState); err != nil {
			return err
		}
		if err := s.registry.UpdateState(frame.Room, room.State(frame.State)); err != nil {
			return err
		}
		return ss.ack("state_updated", frame.Room)

	case frameStats:
		stats, err := s.broadcaster.Stats(frame.Room)
		if err != nil {
			return err
		}
		return ss.client.writeFrame(serverFrame{Type: "stats", Room: frame.Room, Data: map[string]any{
			"total_broadcasts":      stats.TotalBroadcasts,
			"successful_broadcasts": stats.SuccessfulBroadcasts,
			"failed_broadcasts":     stats.FailedBroadcasts,
		}})

	default:
		return errs.Newf(errs.CodeUnknownEvent, "Unknown message type %q", frame.Type)
	}
}

// subscribe registers a subscription and pumps its queue to the client.
func (ss *session) subscribe(roomID string) {
	ss.mu.Lock()
	if _, exists := ss.subs[roomID]; exists {
		ss.mu.Unlock()
		return
	}
	sub := ss.server.hub.Subscribe(roomID, ss.conn.ID)
	ss.subs[roomID] = sub
	ss.mu.Unlock()

	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		for {
			n, ok := sub.Next(ss.server.cfg.PingTimeout)
			if !ok {
				if sub.Closed() {
					return
				}
				// Plain timeout, re-arm the wait.
				continue
			}
			ss.client.writeFrame(serverFrame{Type: "notification", Event: n.Event, Room: roomID, Data: n.Data})
		}
	}()
}

func (ss *session) unsubscribe(roomID string) {
	ss.mu.Lock()
	sub, ok := ss.subs[roomID]
	delete(ss.subs, roomID)
	ss.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

func (ss *session) teardown() {
	ss.mu.Lock()
	ss.subs = make(map[string]*notify.Subscription)
	ss.mu.Unlock()

	// Revoke unsubscribes every owned subscription, which closes their
	// queues and lets pump goroutines drain out.
	ss.server.admitter.Revoke(ss.conn.ID)
	ss.wg.Wait()
}

func (ss *session) ack(ackType, roomID string) error {
	return ss.client.writeFrame(serverFrame{Type: ackType, Room: roomID})
}

func (ss *session) sendError(err error) {
	var typed *errs.Error
	if !errors.As(err, &typed) {
		typed = errs.New(errs.CodeConnectionError, "Connection error")
	}
	ss.client.writeFrame(serverFrame{Type: "error", Error: &frameError{
		Code:    typed.Code,
		Message: typed.Message,
	}})
}

func (ss *session) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(ss.server.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ss.client.ping(); err != nil {
				return
			}
		}
	}
}

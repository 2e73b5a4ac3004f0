// loadtest drives a running roomserver with concurrent websocket clients
// and reports delivery latency and throughput.
// Usage: go run ./cmd/loadtest --url ws://localhost:8443/ws --secret dev-secret --clients 100 --messages 100
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type clientFrame struct {
	Type    string         `json:"type"`
	Room    string         `json:"room,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type serverFrame struct {
	Type  string         `json:"type"`
	Event string         `json:"event,omitempty"`
	Room  string         `json:"room,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func main() {
	wsURL := flag.String("url", "ws://localhost:8443/ws", "websocket endpoint")
	secret := flag.String("secret", "", "shared HMAC secret for signing test tokens")
	roomID := flag.String("room", "load-room", "room id to broadcast into")
	roomType := flag.String("room-type", "GAME", "room type used when creating the room")
	clients := flag.Int("clients", 100, "number of concurrent clients")
	messages := flag.Int("messages", 100, "broadcasts per client")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *secret == "" {
		logger.Error("--secret is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// The room has to exist before any client joins it. Creation is
	// admin-gated, so this uses its own admin-role token.
	if err := ensureRoom(ctx, *wsURL, *secret, *roomID, *roomType); err != nil {
		logger.Error("room setup failed", "room", *roomID, "error", err)
		os.Exit(1)
	}
	logger.Info("room ready", "room", *roomID)

	var (
		sent      atomic.Int64
		received  atomic.Int64
		errored   atomic.Int64
		latencyNs atomic.Int64
	)

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *clients; i++ {
		userID := fmt.Sprintf("load-user-%d", i)
		g.Go(func() error {
			return runClient(gctx, *wsURL, *secret, userID, *roomID, *messages,
				&sent, &received, &errored, &latencyNs)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("load run failed", "error", err)
		os.Exit(1)
	}

	elapsed := time.Since(start)
	total := sent.Load()
	recv := received.Load()

	logger.Info("load run complete",
		"clients", *clients,
		"sent", total,
		"received", recv,
		"errors", errored.Load(),
		"elapsed", elapsed,
		"throughput_per_sec", float64(total)/elapsed.Seconds(),
	)
	if recv > 0 {
		avg := time.Duration(latencyNs.Load() / recv)
		logger.Info("delivery latency", "average", avg)
	}
}

// ensureRoom creates the target room over the wire. A room that already
// exists counts as ready.
func ensureRoom(ctx context.Context, wsURL, secret, roomID, roomType string) error {
	conn, err := dial(ctx, wsURL, secret, "load-admin", "admin")
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := json.Marshal(clientFrame{
		Type: "create_room",
		Room: roomID,
		Data: map[string]any{"room_type": roomType},
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("create_room: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("waiting for room_created: %w", err)
		}
		switch frame.Type {
		case "room_created":
			return nil
		case "error":
			if frame.Error != nil && frame.Error.Code == "DUPLICATE_ROOM" {
				return nil
			}
			return fmt.Errorf("create_room rejected: %+v", frame.Error)
		}
	}
}

func runClient(ctx context.Context, wsURL, secret, userID, roomID string, messages int,
	sent, received, errored, latencyNs *atomic.Int64) error {

	conn, err := dial(ctx, wsURL, secret, userID)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Reader counts notifications and accumulates delivery latency from the
	// sent_at timestamp each broadcast carries.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var frame serverFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "notification":
				received.Add(1)
				if sentAt, ok := frame.Data["sent_at"].(float64); ok {
					latencyNs.Add(time.Now().UnixNano() - int64(sentAt))
				}
			case "error":
				errored.Add(1)
			}
		}
	}()

	writeJSON := func(f clientFrame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	if err := writeJSON(clientFrame{Type: "join", Room: roomID}); err != nil {
		return err
	}
	if err := writeJSON(clientFrame{Type: "subscribe", Room: roomID}); err != nil {
		return err
	}

	for i := 0; i < messages; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame := clientFrame{
			Type:    "broadcast",
			Room:    roomID,
			Message: fmt.Sprintf("msg-%d", i),
			Data:    map[string]any{"sent_at": time.Now().UnixNano()},
		}
		if err := writeJSON(frame); err != nil {
			return fmt.Errorf("broadcast from %s: %w", userID, err)
		}
		sent.Add(1)
	}

	// Let in-flight notifications drain before closing.
	time.Sleep(2 * time.Second)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case <-readerDone:
	case <-time.After(5 * time.Second):
	}
	return nil
}

func dial(ctx context.Context, wsURL, secret, userID string, roles ...string) (*websocket.Conn, error) {
	token, err := signToken(secret, userID, roles...)
	if err != nil {
		return nil, fmt.Errorf("sign token for %s: %w", userID, err)
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", userID, err)
	}
	return conn, nil
}

func signToken(secret, userID string, roles ...string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": jwt.NewNumericDate(time.Now()),
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

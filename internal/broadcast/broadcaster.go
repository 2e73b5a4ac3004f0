// Package broadcast fans messages out to room members and tracks per-room
// delivery statistics.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/cueroom/realtime/internal/errs"
	"github.com/cueroom/realtime/internal/notify"
	"github.com/cueroom/realtime/internal/room"
)

// Stats are per-room broadcast counters. Monotonically non-decreasing;
// reset only when the room is destroyed.
type Stats struct {
	TotalBroadcasts      int64
	SuccessfulBroadcasts int64
	FailedBroadcasts     int64
}

// Broadcaster delivers one logical message to every current member of a
// room. It reads membership from the registry and delivers through the
// notification hub; its only writable state is the per-room stats.
type Broadcaster struct {
	registry *room.Registry
	hub      *notify.Hub
	logger   *slog.Logger

	mu    sync.Mutex
	stats map[string]*Stats
}

// NewBroadcaster creates a broadcaster over the given registry and hub.
func NewBroadcaster(registry *room.Registry, hub *notify.Hub, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		hub:      hub,
		logger:   logger,
		stats:    make(map[string]*Stats),
	}
}

// Broadcast delivers message (plus optional extra payload fields) to every
// current member of the room as a "broadcast" notification.
//
// Fails with ROOM_NOT_FOUND for an unregistered room. Fails with
// EMPTY_ROOM when the room has zero members: a broadcast to an empty room
// is almost certainly a stale room reference, so it fails fast (counted as
// total+failed) instead of silently succeeding with zero recipients.
//
// The member set is snapshotted under the room lock and delivery happens
// outside it. The broadcast counts as successful when at least one live
// subscription received it; members without a subscription are attempted
// but not delivered.
func (b *Broadcaster) Broadcast(roomID, message string, data map[string]any) error {
	members, err := b.registry.Members(roomID)
	if err != nil {
		return err
	}

	stats := b.roomStats(roomID)

	if len(members) == 0 {
		b.mu.Lock()
		stats.TotalBroadcasts++
		stats.FailedBroadcasts++
		b.mu.Unlock()
		return errs.Newf(errs.CodeEmptyRoom, "room %q has no members", roomID)
	}

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["message"] = message

	delivered := b.hub.Notify(roomID, notify.EventBroadcast, payload)

	b.mu.Lock()
	stats.TotalBroadcasts++
	if delivered > 0 {
		stats.SuccessfulBroadcasts++
	} else {
		stats.FailedBroadcasts++
	}
	b.mu.Unlock()

	b.logger.Debug("broadcast delivered",
		"room_id", roomID,
		"members", len(members),
		"subscriptions", delivered,
	)
	return nil
}

// Stats returns a snapshot of the room's broadcast counters. A room that
// exists but has never been broadcast to reports zeros; an unregistered
// room fails with ROOM_NOT_FOUND. The read never blocks a concurrent
// broadcast beyond the counter mutex.
func (b *Broadcaster) Stats(roomID string) (Stats, error) {
	if _, err := b.registry.GetRoom(roomID); err != nil {
		return Stats{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stats[roomID]; ok {
		return *s, nil
	}
	return Stats{}, nil
}

// RoomDestroyed drops the room's counters. Registered as a registry
// lifecycle observer.
func (b *Broadcaster) RoomDestroyed(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stats, roomID)
}

func (b *Broadcaster) roomStats(roomID string) *Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stats[roomID]
	if !ok {
		s = &Stats{}
		b.stats[roomID] = s
	}
	return s
}

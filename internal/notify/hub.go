package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Subscription is a per-owner ordered delivery queue bound to one room.
// It is owned by the subscribing connection; the hub keeps only a lookup
// reference for fan-out.
type Subscription struct {
	hub    *Hub
	id     int64
	roomID string
	owner  string
	q      *queue
}

// RoomID returns the room this subscription is bound to.
func (s *Subscription) RoomID() string { return s.roomID }

// Next blocks until a notification is available or timeout elapses.
// timeout <= 0 waits indefinitely. Returns ok=false on timeout or after the
// subscription has been removed.
func (s *Subscription) Next(timeout time.Duration) (Notification, bool) {
	return s.q.pop(timeout)
}

// TryNext returns the next notification without blocking.
func (s *Subscription) TryNext() (Notification, bool) {
	return s.q.tryPop()
}

// Pending returns the number of undelivered notifications.
func (s *Subscription) Pending() int { return s.q.len() }

// Closed reports whether the subscription has been removed. A false return
// from Next with Closed() == false was a plain timeout.
func (s *Subscription) Closed() bool { return s.q.isClosed() }

// Unsubscribe removes the subscription and discards its queue, including
// notifications already enqueued but not yet consumed.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s)
}

// Hub fans room events out to subscriptions. It reads membership state from
// nothing: subscriptions are its own state, keyed by room id, so a
// subscriber may pre-register for a room that does not exist yet.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	nextID  int64
	byRoom  map[string]map[int64]*Subscription
	byOwner map[string]map[int64]*Subscription
}

// NewHub creates a notification hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		byRoom:  make(map[string]map[int64]*Subscription),
		byOwner: make(map[string]map[int64]*Subscription),
	}
}

// Subscribe registers a new subscription for roomID. owner identifies the
// connection that owns the subscription ("" for detached subscribers such
// as tests or monitors); UnsubscribeOwner tears down everything an owner
// holds.
func (h *Hub) Subscribe(roomID, owner string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		hub:    h,
		id:     h.nextID,
		roomID: roomID,
		owner:  owner,
		q:      newQueue(16),
	}

	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[int64]*Subscription)
	}
	h.byRoom[roomID][sub.id] = sub

	if owner != "" {
		if h.byOwner[owner] == nil {
			h.byOwner[owner] = make(map[int64]*Subscription)
		}
		h.byOwner[owner][sub.id] = sub
	}

	return sub
}

// Notify pushes a notification to every subscription currently registered
// for roomID. The subscriber list is snapshotted under the lock and
// delivery happens outside it, so a blocked consumer cannot stall the hub.
func (h *Hub) Notify(roomID, event string, data map[string]any) int {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.byRoom[roomID]))
	for _, sub := range h.byRoom[roomID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	n := Notification{Event: event, Data: data, EnqueuedAt: time.Now()}

	delivered := 0
	for _, sub := range subs {
		if sub.q.push(n) {
			delivered++
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions for a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byRoom[roomID])
}

// UnsubscribeOwner removes every subscription held by owner. Called on
// connection teardown so no notification is ever delivered to a
// disconnected client.
func (h *Hub) UnsubscribeOwner(owner string) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.byOwner[owner]))
	for _, sub := range h.byOwner[owner] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.remove(sub)
	}
}

// RoomDestroyed drops every subscription for a destroyed room. Registered
// as a registry lifecycle observer.
func (h *Hub) RoomDestroyed(roomID string) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.byRoom[roomID]))
	for _, sub := range h.byRoom[roomID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.remove(sub)
	}

	if len(subs) > 0 {
		h.logger.Debug("dropped subscriptions for destroyed room",
			"room_id", roomID,
			"count", len(subs),
		)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if room, ok := h.byRoom[sub.roomID]; ok {
		delete(room, sub.id)
		if len(room) == 0 {
			delete(h.byRoom, sub.roomID)
		}
	}
	if sub.owner != "" {
		if owned, ok := h.byOwner[sub.owner]; ok {
			delete(owned, sub.id)
			if len(owned) == 0 {
				delete(h.byOwner, sub.owner)
			}
		}
	}
	h.mu.Unlock()

	// Close outside the hub lock; close wakes blocked consumers.
	sub.q.close()
}

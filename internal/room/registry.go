package room

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cueroom/realtime/internal/errs"
)

// Notifier delivers room events to subscribers. Satisfied by notify.Hub.
type Notifier interface {
	Notify(roomID, event string, data map[string]any) int
}

// LifecycleObserver is told when a room is destroyed so dependent state
// (subscriptions, broadcast stats, persisted snapshots) can be released.
type LifecycleObserver interface {
	RoomDestroyed(roomID string)
}

// CreateOption configures room creation.
type CreateOption func(*roomRecord)

// WithMaxMembers caps room membership. Adding a member beyond the cap
// fails with ROOM_FULL. n <= 0 means unlimited.
func WithMaxMembers(n int) CreateOption {
	return func(r *roomRecord) {
		if n > 0 {
			r.maxMembers = n
		}
	}
}

// Registry tracks rooms for the lifetime of the process. Room ids are
// unique within a registry; destroyed ids may be reused.
type Registry struct {
	logger   *slog.Logger
	notifier Notifier

	mu          sync.RWMutex
	rooms       map[string]*roomRecord
	memberRooms map[string]map[string]struct{} // member id -> room ids

	obsMu     sync.RWMutex
	observers []LifecycleObserver
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:      logger,
		rooms:       make(map[string]*roomRecord),
		memberRooms: make(map[string]map[string]struct{}),
	}
}

// SetNotifier wires the notification hub used for state_changed events.
func (reg *Registry) SetNotifier(n Notifier) {
	reg.notifier = n
}

// AddObserver registers a lifecycle observer for destroy cascades.
func (reg *Registry) AddObserver(o LifecycleObserver) {
	reg.obsMu.Lock()
	defer reg.obsMu.Unlock()
	reg.observers = append(reg.observers, o)
}

// CreateRoom creates a room in state PENDING with no members. An empty id
// generates one from the room type. Fails with DUPLICATE_ROOM if the id is
// already registered.
func (reg *Registry) CreateRoom(id string, typ Type, opts ...CreateOption) (Room, error) {
	if !typ.Valid() {
		return Room{}, errs.Newf(errs.CodeInvalidMessage, "unknown room type %q", typ)
	}
	if id == "" {
		id = generateRoomID(typ)
	}

	now := time.Now()
	rec := &roomRecord{
		id:           id,
		typ:          typ,
		state:        StatePending,
		members:      make(map[string]struct{}),
		createdAt:    now,
		lastActivity: now,
	}
	for _, opt := range opts {
		opt(rec)
	}

	reg.mu.Lock()
	if _, exists := reg.rooms[id]; exists {
		reg.mu.Unlock()
		return Room{}, errs.Newf(errs.CodeDuplicateRoom, "room %q already exists", id)
	}
	reg.rooms[id] = rec
	reg.mu.Unlock()

	reg.logger.Info("room created",
		"room_id", id,
		"room_type", typ,
		"max_members", rec.maxMembers,
	)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshotLocked(), nil
}

// GetRoom returns a snapshot of the room. Fails with ROOM_NOT_FOUND.
func (reg *Registry) GetRoom(id string) (Room, error) {
	rec, err := reg.record(id)
	if err != nil {
		return Room{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshotLocked(), nil
}

// Members returns a point-in-time snapshot of the member set.
func (reg *Registry) Members(id string) ([]string, error) {
	rec, err := reg.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	members := make([]string, 0, len(rec.members))
	for m := range rec.members {
		members = append(members, m)
	}
	return members, nil
}

// AddMember adds memberID to the room. Adding a member already present is
// a no-op. Fails with ROOM_FULL when a capacity cap is set and reached.
func (reg *Registry) AddMember(roomID, memberID string) error {
	rec, err := reg.record(roomID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if _, present := rec.members[memberID]; present {
		rec.mu.Unlock()
		return nil
	}
	if rec.maxMembers > 0 && len(rec.members) >= rec.maxMembers {
		rec.mu.Unlock()
		return errs.Newf(errs.CodeRoomFull, "room %q is full (%d members)", roomID, rec.maxMembers)
	}
	rec.members[memberID] = struct{}{}
	rec.lastActivity = time.Now()
	rec.mu.Unlock()

	reg.mu.Lock()
	// The room can be destroyed between the two locks; a reverse index
	// entry must never outlive its room.
	if _, live := reg.rooms[roomID]; !live {
		reg.mu.Unlock()
		return errs.Newf(errs.CodeRoomNotFound, "room %q not found", roomID)
	}
	if reg.memberRooms[memberID] == nil {
		reg.memberRooms[memberID] = make(map[string]struct{})
	}
	reg.memberRooms[memberID][roomID] = struct{}{}
	reg.mu.Unlock()

	reg.logger.Debug("member joined room", "room_id", roomID, "member_id", memberID)
	return nil
}

// RemoveMember removes memberID from the room. Removing an absent member
// is a no-op, not an error.
func (reg *Registry) RemoveMember(roomID, memberID string) error {
	rec, err := reg.record(roomID)
	if err != nil {
		// The room is gone; drop any reverse index entry left for it.
		reg.pruneMemberRoom(memberID, roomID)
		return err
	}

	rec.mu.Lock()
	_, present := rec.members[memberID]
	if present {
		delete(rec.members, memberID)
		rec.lastActivity = time.Now()
	}
	rec.mu.Unlock()

	if !present {
		return nil
	}

	reg.pruneMemberRoom(memberID, roomID)

	reg.logger.Debug("member left room", "room_id", roomID, "member_id", memberID)
	return nil
}

// RoomsOf returns the ids of every room the member currently belongs to.
func (reg *Registry) RoomsOf(memberID string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rooms := make([]string, 0, len(reg.memberRooms[memberID]))
	for id := range reg.memberRooms[memberID] {
		rooms = append(rooms, id)
	}
	return rooms
}

// RemoveFromAll removes the member from every room it belongs to and
// returns the affected room ids. Used by connection teardown.
func (reg *Registry) RemoveFromAll(memberID string) []string {
	rooms := reg.RoomsOf(memberID)
	for _, id := range rooms {
		// Room may have been destroyed concurrently; removal is best-effort.
		_ = reg.RemoveMember(id, memberID)
	}
	return rooms
}

// UpdateState requests a state transition. Valid transitions are
// PENDING->ACTIVE, ACTIVE->CLOSED and PENDING->CLOSED; closing an already
// closed room is a silent no-op. Anything else fails with
// INVALID_TRANSITION. A successful transition emits a state_changed
// notification to every subscription of the room.
func (reg *Registry) UpdateState(roomID string, next State) error {
	rec, err := reg.record(roomID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	current := rec.state
	if current == next {
		rec.mu.Unlock()
		if next == StateClosed {
			return nil // close of a closed room tolerated
		}
		return errs.Newf(errs.CodeInvalidTransition,
			"room %q is already %s", roomID, current)
	}
	if !canTransition(current, next) {
		rec.mu.Unlock()
		return errs.Newf(errs.CodeInvalidTransition,
			"room %q cannot transition %s -> %s", roomID, current, next)
	}
	rec.state = next
	rec.lastActivity = time.Now()
	rec.mu.Unlock()

	reg.logger.Info("room state changed",
		"room_id", roomID,
		"from", current,
		"to", next,
	)

	// Emit outside the room lock: delivery must never hold it.
	if reg.notifier != nil {
		reg.notifier.Notify(roomID, "state_changed", map[string]any{"state": string(next)})
	}
	return nil
}

// DestroyRoom removes the room and cascades destruction of its stats and
// subscriptions through the registered observers.
func (reg *Registry) DestroyRoom(id string) error {
	reg.mu.Lock()
	rec, ok := reg.rooms[id]
	if !ok {
		reg.mu.Unlock()
		return errs.Newf(errs.CodeRoomNotFound, "room %q not found", id)
	}
	delete(reg.rooms, id)

	rec.mu.Lock()
	for m := range rec.members {
		if rooms, ok := reg.memberRooms[m]; ok {
			delete(rooms, id)
			if len(rooms) == 0 {
				delete(reg.memberRooms, m)
			}
		}
	}
	rec.members = make(map[string]struct{})
	rec.mu.Unlock()
	reg.mu.Unlock()

	reg.obsMu.RLock()
	observers := make([]LifecycleObserver, len(reg.observers))
	copy(observers, reg.observers)
	reg.obsMu.RUnlock()

	for _, o := range observers {
		o.RoomDestroyed(id)
	}

	reg.logger.Info("room destroyed", "room_id", id)
	return nil
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// ListRooms returns snapshots of all live rooms.
func (reg *Registry) ListRooms() []Room {
	reg.mu.RLock()
	recs := make([]*roomRecord, 0, len(reg.rooms))
	for _, rec := range reg.rooms {
		recs = append(recs, rec)
	}
	reg.mu.RUnlock()

	rooms := make([]Room, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		rooms = append(rooms, rec.snapshotLocked())
		rec.mu.Unlock()
	}
	return rooms
}

// CleanupIdle destroys rooms that are empty and have seen no activity for
// at least idleFor. Returns the number of rooms destroyed.
func (reg *Registry) CleanupIdle(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)

	reg.mu.RLock()
	candidates := make([]string, 0)
	for id, rec := range reg.rooms {
		rec.mu.Lock()
		if len(rec.members) == 0 && rec.lastActivity.Before(cutoff) {
			candidates = append(candidates, id)
		}
		rec.mu.Unlock()
	}
	reg.mu.RUnlock()

	destroyed := 0
	for _, id := range candidates {
		if err := reg.DestroyRoom(id); err == nil {
			destroyed++
		}
	}
	if destroyed > 0 {
		reg.logger.Info("idle rooms cleaned up", "count", destroyed)
	}
	return destroyed
}

// Restore reinserts a previously persisted room. Used by crash recovery;
// fails with DUPLICATE_ROOM if the id is live.
func (reg *Registry) Restore(r Room) error {
	if !r.Type.Valid() {
		return errs.Newf(errs.CodeInvalidMessage, "unknown room type %q", r.Type)
	}
	rec := &roomRecord{
		id:           r.ID,
		typ:          r.Type,
		state:        r.State,
		members:      make(map[string]struct{}),
		maxMembers:   r.MaxMembers,
		createdAt:    r.CreatedAt,
		lastActivity: time.Now(),
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[r.ID]; exists {
		return errs.Newf(errs.CodeDuplicateRoom, "room %q already exists", r.ID)
	}
	reg.rooms[r.ID] = rec
	return nil
}

func (reg *Registry) pruneMemberRoom(memberID, roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rooms, ok := reg.memberRooms[memberID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(reg.memberRooms, memberID)
		}
	}
}

func (reg *Registry) record(id string) (*roomRecord, error) {
	reg.mu.RLock()
	rec, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.CodeRoomNotFound, "room %q not found", id)
	}
	return rec, nil
}

// generateRoomID builds an id like "game-1b9d6bcd" from the room type.
func generateRoomID(typ Type) string {
	short := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%s", strings.ToLower(string(typ)), short)
}

package room

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cueroom/realtime/internal/errs"
)

// recordingNotifier captures emitted notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	roomID string
	event  string
	data   map[string]any
}

func (n *recordingNotifier) Notify(roomID, event string, data map[string]any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{roomID, event, data})
	return 1
}

func (n *recordingNotifier) all() []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]recordedEvent, len(n.events))
	copy(out, n.events)
	return out
}

type recordingObserver struct {
	mu        sync.Mutex
	destroyed []string
}

func (o *recordingObserver) RoomDestroyed(roomID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destroyed = append(o.destroyed, roomID)
}

func TestCreateRoom(t *testing.T) {
	reg := NewRegistry(nil)

	r, err := reg.CreateRoom("game-1", TypeGame)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if r.ID != "game-1" {
		t.Errorf("ID = %q, want %q", r.ID, "game-1")
	}
	if r.Type != TypeGame {
		t.Errorf("Type = %q, want %q", r.Type, TypeGame)
	}
	if r.State != StatePending {
		t.Errorf("State = %q, want %q", r.State, StatePending)
	}
	if r.MemberCount() != 0 {
		t.Errorf("MemberCount() = %d, want 0", r.MemberCount())
	}
}

func TestCreateRoom_GeneratedID(t *testing.T) {
	reg := NewRegistry(nil)

	r, err := reg.CreateRoom("", TypeTournament)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if !strings.HasPrefix(r.ID, "tournament-") {
		t.Errorf("generated ID = %q, want tournament- prefix", r.ID)
	}

	r2, _ := reg.CreateRoom("", TypeTournament)
	if r.ID == r2.ID {
		t.Errorf("generated IDs collide: %q", r.ID)
	}
}

func TestCreateRoom_Duplicate(t *testing.T) {
	reg := NewRegistry(nil)

	if _, err := reg.CreateRoom("game-1", TypeGame); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	_, err := reg.CreateRoom("game-1", TypeChat)
	if !errors.Is(err, errs.ErrDuplicateRoom) {
		t.Errorf("duplicate create error = %v, want DUPLICATE_ROOM", err)
	}
}

func TestCreateRoom_UnknownType(t *testing.T) {
	reg := NewRegistry(nil)

	if _, err := reg.CreateRoom("x", Type("LOBBY")); err == nil {
		t.Error("CreateRoom accepted unknown room type")
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.GetRoom("missing")
	if !errors.Is(err, errs.ErrRoomNotFound) {
		t.Errorf("GetRoom error = %v, want ROOM_NOT_FOUND", err)
	}
}

func TestAddMember(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)

	if err := reg.AddMember("game-1", "user-1"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	// Adding twice is a no-op
	if err := reg.AddMember("game-1", "user-1"); err != nil {
		t.Fatalf("repeat AddMember failed: %v", err)
	}

	members, err := reg.Members("game-1")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 1 || members[0] != "user-1" {
		t.Errorf("Members = %v, want [user-1]", members)
	}

	if rooms := reg.RoomsOf("user-1"); len(rooms) != 1 || rooms[0] != "game-1" {
		t.Errorf("RoomsOf = %v, want [game-1]", rooms)
	}
}

func TestAddMember_RoomFull(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame, WithMaxMembers(2))

	reg.AddMember("game-1", "user-1")
	reg.AddMember("game-1", "user-2")

	err := reg.AddMember("game-1", "user-3")
	if !errors.Is(err, errs.ErrRoomFull) {
		t.Errorf("AddMember over cap error = %v, want ROOM_FULL", err)
	}

	// Existing members still no-op cleanly
	if err := reg.AddMember("game-1", "user-1"); err != nil {
		t.Errorf("re-adding existing member in full room failed: %v", err)
	}
}

func TestRemoveMember_AbsentIsNoop(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)

	if err := reg.RemoveMember("game-1", "nobody"); err != nil {
		t.Errorf("removing absent member = %v, want nil", err)
	}
}

func TestRemoveFromAll(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)
	reg.CreateRoom("chat-1", TypeChat)

	reg.AddMember("game-1", "user-1")
	reg.AddMember("chat-1", "user-1")

	affected := reg.RemoveFromAll("user-1")
	if len(affected) != 2 {
		t.Errorf("RemoveFromAll affected %d rooms, want 2", len(affected))
	}
	if rooms := reg.RoomsOf("user-1"); len(rooms) != 0 {
		t.Errorf("RoomsOf after RemoveFromAll = %v, want empty", rooms)
	}
}

func TestUpdateState_ForwardTransitions(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)

	if err := reg.UpdateState("game-1", StateActive); err != nil {
		t.Fatalf("PENDING->ACTIVE failed: %v", err)
	}
	if err := reg.UpdateState("game-1", StateClosed); err != nil {
		t.Fatalf("ACTIVE->CLOSED failed: %v", err)
	}

	r, _ := reg.GetRoom("game-1")
	if r.State != StateClosed {
		t.Errorf("State = %q, want CLOSED", r.State)
	}
}

func TestUpdateState_PendingToClosed(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)

	if err := reg.UpdateState("game-1", StateClosed); err != nil {
		t.Fatalf("PENDING->CLOSED failed: %v", err)
	}
}

func TestUpdateState_InvalidTransitions(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)
	reg.UpdateState("game-1", StateActive)

	// Backward
	err := reg.UpdateState("game-1", StatePending)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Errorf("ACTIVE->PENDING error = %v, want INVALID_TRANSITION", err)
	}

	// Reopening a closed room
	reg.UpdateState("game-1", StateClosed)
	err = reg.UpdateState("game-1", StateActive)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Errorf("CLOSED->ACTIVE error = %v, want INVALID_TRANSITION", err)
	}
}

func TestUpdateState_CloseOfClosedIsNoop(t *testing.T) {
	reg := NewRegistry(nil)
	notifier := &recordingNotifier{}
	reg.SetNotifier(notifier)
	reg.CreateRoom("game-1", TypeGame)

	reg.UpdateState("game-1", StateClosed)
	before := len(notifier.all())

	if err := reg.UpdateState("game-1", StateClosed); err != nil {
		t.Errorf("closing a closed room = %v, want nil", err)
	}
	if after := len(notifier.all()); after != before {
		t.Errorf("repeat close emitted a notification (%d -> %d events)", before, after)
	}
}

func TestUpdateState_EmitsStateChanged(t *testing.T) {
	reg := NewRegistry(nil)
	notifier := &recordingNotifier{}
	reg.SetNotifier(notifier)
	reg.CreateRoom("game-1", TypeGame)

	if err := reg.UpdateState("game-1", StateActive); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	events := notifier.all()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	if events[0].roomID != "game-1" || events[0].event != "state_changed" {
		t.Errorf("notification = %+v, want state_changed for game-1", events[0])
	}
	if events[0].data["state"] != "ACTIVE" {
		t.Errorf("state payload = %v, want ACTIVE", events[0].data["state"])
	}
}

func TestDestroyRoom_Cascades(t *testing.T) {
	reg := NewRegistry(nil)
	obs := &recordingObserver{}
	reg.AddObserver(obs)

	reg.CreateRoom("game-1", TypeGame)
	reg.AddMember("game-1", "user-1")

	if err := reg.DestroyRoom("game-1"); err != nil {
		t.Fatalf("DestroyRoom failed: %v", err)
	}

	if _, err := reg.GetRoom("game-1"); !errors.Is(err, errs.ErrRoomNotFound) {
		t.Errorf("GetRoom after destroy = %v, want ROOM_NOT_FOUND", err)
	}
	if rooms := reg.RoomsOf("user-1"); len(rooms) != 0 {
		t.Errorf("RoomsOf after destroy = %v, want empty", rooms)
	}
	if len(obs.destroyed) != 1 || obs.destroyed[0] != "game-1" {
		t.Errorf("observer destroyed = %v, want [game-1]", obs.destroyed)
	}

	// Destroyed id may be reused
	if _, err := reg.CreateRoom("game-1", TypeGame); err != nil {
		t.Errorf("recreating destroyed room failed: %v", err)
	}
}

func TestCleanupIdle(t *testing.T) {
	reg := NewRegistry(nil)

	reg.CreateRoom("stale", TypeChat)
	reg.CreateRoom("occupied", TypeChat)
	reg.AddMember("occupied", "user-1")

	// Everything is fresh; nothing qualifies.
	if n := reg.CleanupIdle(time.Hour); n != 0 {
		t.Errorf("CleanupIdle(1h) = %d, want 0", n)
	}

	// With a zero threshold the empty room qualifies but the occupied one
	// must survive.
	time.Sleep(5 * time.Millisecond)
	if n := reg.CleanupIdle(0); n != 1 {
		t.Errorf("CleanupIdle(0) = %d, want 1", n)
	}
	if _, err := reg.GetRoom("stale"); err == nil {
		t.Error("stale room survived cleanup")
	}
	if _, err := reg.GetRoom("occupied"); err != nil {
		t.Errorf("occupied room destroyed by cleanup: %v", err)
	}
}

func TestRestore(t *testing.T) {
	reg := NewRegistry(nil)

	err := reg.Restore(Room{
		ID:        "game-1",
		Type:      TypeGame,
		State:     StateActive,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	r, err := reg.GetRoom("game-1")
	if err != nil {
		t.Fatalf("GetRoom after Restore failed: %v", err)
	}
	if r.State != StateActive {
		t.Errorf("State = %q, want ACTIVE", r.State)
	}
	if r.MemberCount() != 0 {
		t.Errorf("MemberCount() = %d, want 0 after restore", r.MemberCount())
	}

	if err := reg.Restore(Room{ID: "game-1", Type: TypeGame}); !errors.Is(err, errs.ErrDuplicateRoom) {
		t.Errorf("Restore over live room = %v, want DUPLICATE_ROOM", err)
	}
}

func TestConcurrentMembership(t *testing.T) {
	reg := NewRegistry(nil)
	reg.CreateRoom("game-1", TypeGame)

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "user-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			reg.AddMember("game-1", id)
		}(i)
	}
	wg.Wait()

	members, _ := reg.Members("game-1")
	if len(members) == 0 {
		t.Error("no members after concurrent joins")
	}

	r, _ := reg.GetRoom("game-1")
	if r.MemberCount() != len(members) {
		t.Errorf("snapshot MemberCount() = %d, Members() = %d", r.MemberCount(), len(members))
	}
}

func TestRemoveMember_PrunesIndexForMissingRoom(t *testing.T) {
	reg := NewRegistry(nil)

	// A reverse index entry whose room no longer exists.
	reg.memberRooms["user-1"] = map[string]struct{}{"gone-1": {}}

	err := reg.RemoveMember("gone-1", "user-1")
	if !errors.Is(err, errs.ErrRoomNotFound) {
		t.Fatalf("RemoveMember error = %v, want ROOM_NOT_FOUND", err)
	}
	if rooms := reg.RoomsOf("user-1"); len(rooms) != 0 {
		t.Errorf("RoomsOf after prune = %v, want empty", rooms)
	}
}

func TestAddMember_ConcurrentDestroy(t *testing.T) {
	reg := NewRegistry(nil)

	for i := 0; i < 200; i++ {
		reg.CreateRoom("game-1", TypeGame)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.AddMember("game-1", "user-1")
		}()
		go func() {
			defer wg.Done()
			reg.DestroyRoom("game-1")
		}()
		wg.Wait()

		if rooms := reg.RoomsOf("user-1"); len(rooms) != 0 {
			t.Fatalf("iteration %d: RoomsOf reports destroyed room: %v", i, rooms)
		}
	}
}

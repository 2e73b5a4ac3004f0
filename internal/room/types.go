package room

import (
	"sync"
	"time"
)

// Type classifies what a room is used for.
type Type string

const (
	TypeGame         Type = "GAME"
	TypeTournament   Type = "TOURNAMENT"
	TypeChat         Type = "CHAT"
	TypeNotification Type = "NOTIFICATION"
)

// Valid reports whether t is a known room type.
func (t Type) Valid() bool {
	switch t {
	case TypeGame, TypeTournament, TypeChat, TypeNotification:
		return true
	}
	return false
}

// State is a room lifecycle state. States only move forward.
type State string

const (
	StatePending State = "PENDING"
	StateActive  State = "ACTIVE"
	StateClosed  State = "CLOSED"
)

// canTransition reports whether from -> to is a valid forward transition.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateActive || to == StateClosed
	case StateActive:
		return to == StateClosed
	}
	return false
}

// Room is a point-in-time snapshot of a room, safe to retain after the
// registry mutates the live record.
type Room struct {
	ID           string
	Type         Type
	State        State
	Members      []string
	MaxMembers   int // 0 means unlimited
	CreatedAt    time.Time
	LastActivity time.Time
}

// MemberCount returns the number of members in the snapshot.
func (r Room) MemberCount() int { return len(r.Members) }

// roomRecord is the live, mutable room. Its mutex guards every field and
// is held only for the duration of an in-memory mutation.
type roomRecord struct {
	mu           sync.Mutex
	id           string
	typ          Type
	state        State
	members      map[string]struct{}
	maxMembers   int
	createdAt    time.Time
	lastActivity time.Time
}

func (r *roomRecord) snapshotLocked() Room {
	members := make([]string, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	return Room{
		ID:           r.id,
		Type:         r.typ,
		State:        r.state,
		Members:      members,
		MaxMembers:   r.maxMembers,
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
	}
}

// Package room implements the room registry and the room state machine.
//
// The registry is the single writer-of-record for room membership. All
// mutations happen under a per-room mutex held only for the in-memory
// update, never across delivery. State transitions move forward only
// (PENDING -> ACTIVE -> CLOSED) and emit a state_changed notification
// through the injected Notifier.
package room

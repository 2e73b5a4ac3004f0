// Package errs defines the typed error taxonomy surfaced by the realtime
// core. Every public operation either returns nil or exactly one *Error;
// callers branch on the stable Code string, never on the message text.
package errs

import "fmt"

// Stable error codes. The transport layer maps these to close codes or
// error frames; the strings are part of the wire contract and must not
// change.
const (
	CodeAuthFailed        = "AUTH_FAILED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeAuthzFailed       = "AUTHZ_FAILED"
	CodeInvalidMessage    = "INVALID_MESSAGE"
	CodeUnknownEvent      = "UNKNOWN_EVENT"
	CodeConnectionError   = "CONNECTION_ERROR"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeDuplicateRoom     = "DUPLICATE_ROOM"
	CodeEmptyRoom         = "EMPTY_ROOM"
	CodeRoomFull          = "ROOM_FULL"
	CodeInvalidTransition = "INVALID_TRANSITION"
)

// Error is a typed failure with a stable code and a default human-readable
// message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so sentinel errors below
// work with errors.Is even when wrapped or rebuilt with a custom message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns a typed error with a custom message under the given code.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors with their default messages. Use errors.Is against these.
var (
	ErrAuthFailed        = &Error{Code: CodeAuthFailed, Message: "Authentication failed"}
	ErrRateLimited       = &Error{Code: CodeRateLimited, Message: "Rate limit exceeded"}
	ErrAuthzFailed       = &Error{Code: CodeAuthzFailed, Message: "Not authorized for this action"}
	ErrInvalidMessage    = &Error{Code: CodeInvalidMessage, Message: "Invalid message payload"}
	ErrUnknownEvent      = &Error{Code: CodeUnknownEvent, Message: "Unknown message type"}
	ErrConnectionError   = &Error{Code: CodeConnectionError, Message: "Connection error"}
	ErrRoomNotFound      = &Error{Code: CodeRoomNotFound, Message: "Room not found"}
	ErrDuplicateRoom     = &Error{Code: CodeDuplicateRoom, Message: "Room already exists"}
	ErrEmptyRoom         = &Error{Code: CodeEmptyRoom, Message: "Room has no members"}
	ErrRoomFull          = &Error{Code: CodeRoomFull, Message: "Room is full"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "Invalid room state transition"}
)

// CodeOf extracts the stable code from any error produced by the core.
// Unrecognized errors map to CONNECTION_ERROR, the catch-all the transport
// reports for internal failures.
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeConnectionError
}

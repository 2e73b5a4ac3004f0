// Package gateway is the websocket transport adapter over the room core.
// It upgrades connections, runs them through admission, translates frames
// into core operations and maps typed errors back into error frames
// carrying the stable code strings. No core logic lives here.
package gateway

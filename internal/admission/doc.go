// Package admission is the gate every connection passes before it may
// touch the room core: bearer token verification, sliding-window rate
// limits, and role-based authorization. It owns Connection records and
// tears down everything a connection holds on revoke.
package admission

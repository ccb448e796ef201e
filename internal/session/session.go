// Package session implements the per-connection protocol state machine: it
// validates inbound messages, tracks identity and room membership, and
// drives the room registry and broadcasts.
package session

// State is the lifecycle phase of a connection's session.
type State int

const (
	// StateUnidentified is the initial state before a clientId is assigned.
	StateUnidentified State = iota
	// StateIdentified means the session has a clientId but no room.
	StateIdentified
	// StateInRoom means the session has a clientId, room code and username.
	StateInRoom
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateInRoom:
		return "in-room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks one connection's identity and membership. It is keyed by
// the stable connection identifier, not by the connection object itself.
type Session struct {
	ClientID string
	RoomCode string
	Username string
	State    State
}

// Package room owns the in-memory registry of active rooms and the
// broadcast-to-room primitive.
package room

import (
	"errors"
	"sync"
)

// MaxMembers is the hard capacity of a single room.
const MaxMembers = 10

var (
	// ErrRoomFull is returned when a join would exceed MaxMembers.
	ErrRoomFull = errors.New("room is full")
	// ErrUsernameTaken is returned when another member already uses the name.
	ErrUsernameTaken = errors.New("username already taken")
)

// Conn is the transport handle a room holds for each member. The room never
// owns the connection; it only sends to it and checks whether it is open.
type Conn interface {
	Send(data []byte) error
	IsOpen() bool
}

type member struct {
	conn     Conn
	username string
}

// Room is a single group of connections identified by a code. All access
// goes through its mutex so joins, leaves and broadcasts observe a
// consistent member set.
type Room struct {
	code    string
	mu      sync.RWMutex
	members map[string]member
}

func newRoom(code string) *Room {
	return &Room{
		code:    code,
		members: make(map[string]member),
	}
}

// Code returns the room's code.
func (r *Room) Code() string { return r.code }

// Size returns the current member count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Add admits clientID with the given connection and username. The username
// must differ from every other member's username (an existing entry for the
// same clientID does not block itself). Returns the member count after the
// add.
func (r *Room) Add(clientID string, conn Conn, username string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.members {
		if id != clientID && m.username == username {
			return 0, ErrUsernameTaken
		}
	}

	if _, exists := r.members[clientID]; !exists && len(r.members) >= MaxMembers {
		return 0, ErrRoomFull
	}

	r.members[clientID] = member{conn: conn, username: username}
	return len(r.members), nil
}

// Remove drops clientID from the room and returns the remaining count.
// Removing an absent member is a no-op.
func (r *Room) Remove(clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, clientID)
	return len(r.members)
}

// Usernames returns the current usernames, for diagnostics.
func (r *Room) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.username)
	}
	return names
}

// Package protocol defines the JSON wire messages exchanged with clients and
// the validators for room codes and usernames.
package protocol

import (
	"encoding/json"
	"regexp"
)

// Inbound message types.
const (
	TypeConnect = "connect"
	TypeJoin    = "join"
	TypeMessage = "message"
	TypeImage   = "image"
	TypeLeave   = "leave"
	TypePing    = "ping"
)

// Outbound message types.
const (
	TypeConnected          = "connected"
	TypeJoined             = "joined"
	TypeJoinNotify         = "join-notify"
	TypePong               = "pong"
	TypeError              = "error"
	TypeClientDisconnected = "client-disconnected"
)

// Error texts sent to clients. These are part of the wire contract.
const (
	ErrTextInvalidFormat   = "Invalid message format"
	ErrTextInvalidCode     = "Invalid room code"
	ErrTextInvalidUsername = "Invalid username"
	ErrTextUsernameTaken   = "Username already taken"
	ErrTextChatFull        = "Chat is full"
	ErrTextInvalidRelay    = "Invalid message format or not in a chat"
	ErrTextNotInChat       = "Not in chat"
)

// Envelope is the single wire shape for every message in both directions.
// The type field selects the variant; unused fields are omitted.
type Envelope struct {
	Type         string `json:"type"`
	ClientID     string `json:"clientId,omitempty"`
	Code         string `json:"code,omitempty"`
	Username     string `json:"username,omitempty"`
	TotalClients int    `json:"totalClients,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	Content      string `json:"content,omitempty"`
	Data         string `json:"data,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Decode parses a single inbound frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

var (
	roomCodeRE = regexp.MustCompile(`^[A-Za-z0-9]{4}-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}$`)
	usernameRE = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)
)

// ValidRoomCode reports whether code has the XXXX-XXXX-XXXX-XXXX shape,
// each group being 4 alphanumeric characters. Case is preserved.
func ValidRoomCode(code string) bool {
	return roomCodeRE.MatchString(code)
}

// ValidUsername reports whether name is 1 to 16 alphanumeric characters.
func ValidUsername(name string) bool {
	return usernameRE.MatchString(name)
}

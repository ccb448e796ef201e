package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"huddle/internal/protocol"
	"huddle/internal/room"
)

// Conn is the transport handle the manager drives. ID must be stable for
// the life of the connection and unique across connections.
type Conn interface {
	ID() string
	Send(data []byte) error
	IsOpen() bool
	Close() error
}

// Manager owns all sessions and applies protocol messages to them. One
// mutex serializes every state mutation, so each inbound message or close
// event runs to completion against a consistent view of the registry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	registry *room.Registry
	log      *zap.Logger
}

// NewManager creates a manager backed by the given registry.
func NewManager(registry *room.Registry, log *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		registry: registry,
		log:      log,
	}
}

// HandleMessage processes one inbound frame from conn. Malformed frames
// produce an error response and no state change; unrecognized types are
// silently ignored.
func (m *Manager) HandleMessage(conn Conn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		m.sendError(conn, protocol.ErrTextInvalidFormat)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch env.Type {
	case protocol.TypeConnect:
		m.handleConnect(conn, env)
	case protocol.TypeJoin:
		m.handleJoin(conn, env)
	case protocol.TypeMessage, protocol.TypeImage:
		m.handleRelay(conn, env)
	case protocol.TypeLeave:
		m.handleLeave(conn)
	case protocol.TypePing:
		m.send(conn, protocol.Envelope{Type: protocol.TypePong})
	default:
		// Unrecognized types are ignored without an error response.
	}
}

// HandleClose processes the transport's connection-close event. It performs
// the same membership cleanup as an explicit leave but does not touch the
// already-closed connection. Safe to call after HandleLeave already ran.
func (m *Manager) HandleClose(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[conn.ID()]
	if !ok {
		return
	}
	if s.State == StateInRoom {
		m.detach(s)
	}
	s.State = StateClosed
	delete(m.sessions, conn.ID())

	m.log.Info("session closed", zap.String("clientId", s.ClientID))
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) handleConnect(conn Conn, env protocol.Envelope) {
	s := m.session(conn)

	// Re-identifying while in a room detaches from it first so room
	// entries always match their session's clientId.
	if s.State == StateInRoom {
		m.detach(s)
	}

	clientID := env.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	s.ClientID = clientID
	s.State = StateIdentified

	m.log.Info("client identified", zap.String("clientId", clientID))
	m.send(conn, protocol.Envelope{Type: protocol.TypeConnected, ClientID: clientID})
}

func (m *Manager) handleJoin(conn Conn, env protocol.Envelope) {
	if !protocol.ValidRoomCode(env.Code) {
		m.sendError(conn, protocol.ErrTextInvalidCode)
		return
	}
	if !protocol.ValidUsername(env.Username) {
		m.sendError(conn, protocol.ErrTextInvalidUsername)
		return
	}

	s := m.session(conn)
	if s.ClientID == "" {
		s.ClientID = uuid.NewString()
	}
	if s.State == StateInRoom && s.RoomCode != env.Code {
		m.detach(s)
	}

	r := m.registry.GetOrCreate(env.Code)
	total, err := r.Add(s.ClientID, conn, env.Username)
	if err != nil {
		// A rejected join may have created the room; drop it again.
		m.registry.RemoveIfEmpty(env.Code)
		switch {
		case errors.Is(err, room.ErrUsernameTaken):
			m.sendError(conn, protocol.ErrTextUsernameTaken)
		case errors.Is(err, room.ErrRoomFull):
			m.sendError(conn, protocol.ErrTextChatFull)
		default:
			m.sendError(conn, protocol.ErrTextInvalidFormat)
		}
		return
	}

	s.RoomCode = env.Code
	s.Username = env.Username
	s.State = StateInRoom

	m.log.Info("client joined room",
		zap.String("clientId", s.ClientID),
		zap.String("code", env.Code),
		zap.Int("totalClients", total))

	m.send(conn, protocol.Envelope{
		Type:         protocol.TypeJoined,
		Code:         env.Code,
		TotalClients: total,
	})
	m.broadcast(env.Code, s.ClientID, protocol.Envelope{
		Type:         protocol.TypeJoinNotify,
		ClientID:     s.ClientID,
		Username:     env.Username,
		TotalClients: total,
		Code:         env.Code,
	})
}

func (m *Manager) handleRelay(conn Conn, env protocol.Envelope) {
	s, ok := m.sessions[conn.ID()]
	if !ok || s.State != StateInRoom {
		m.sendError(conn, protocol.ErrTextNotInChat)
		return
	}

	valid := env.MessageID != "" && env.Username != ""
	switch env.Type {
	case protocol.TypeMessage:
		valid = valid && env.Content != ""
	case protocol.TypeImage:
		valid = valid && env.Data != ""
	}
	if !valid {
		m.sendError(conn, protocol.ErrTextInvalidRelay)
		return
	}

	// Relay the message unchanged to the rest of the room.
	m.broadcast(s.RoomCode, s.ClientID, protocol.Envelope{
		Type:      env.Type,
		MessageID: env.MessageID,
		Username:  env.Username,
		Content:   env.Content,
		Data:      env.Data,
	})
}

func (m *Manager) handleLeave(conn Conn) {
	if s, ok := m.sessions[conn.ID()]; ok {
		if s.State == StateInRoom {
			m.detach(s)
		}
		s.State = StateClosed
		delete(m.sessions, conn.ID())
	}

	// The server closes the connection on leave regardless of prior state.
	if err := conn.Close(); err != nil {
		m.log.Debug("close after leave", zap.String("connId", conn.ID()), zap.Error(err))
	}
}

// detach removes the session's membership, cleans up an emptied room, and
// notifies any survivors. Caller holds m.mu and guarantees StateInRoom.
func (m *Manager) detach(s *Session) {
	code := s.RoomCode

	if r, ok := m.registry.Get(code); ok {
		remaining := r.Remove(s.ClientID)
		m.registry.RemoveIfEmpty(code)
		if remaining > 0 {
			m.broadcast(code, s.ClientID, protocol.Envelope{
				Type:         protocol.TypeClientDisconnected,
				ClientID:     s.ClientID,
				TotalClients: remaining,
				Code:         code,
			})
		}
		m.log.Info("client left room",
			zap.String("clientId", s.ClientID),
			zap.String("code", code),
			zap.Int("totalClients", remaining))
	}

	s.RoomCode = ""
	s.Username = ""
	if s.ClientID != "" {
		s.State = StateIdentified
	} else {
		s.State = StateUnidentified
	}
}

// session returns the record for conn, creating it on first contact.
func (m *Manager) session(conn Conn) *Session {
	s, ok := m.sessions[conn.ID()]
	if !ok {
		s = &Session{State: StateUnidentified}
		m.sessions[conn.ID()] = s
	}
	return s
}

func (m *Manager) send(conn Conn, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		m.log.Warn("marshal outbound message", zap.String("type", env.Type), zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		m.log.Debug("send to connection", zap.String("connId", conn.ID()), zap.Error(err))
	}
}

func (m *Manager) sendError(conn Conn, text string) {
	m.send(conn, protocol.Envelope{Type: protocol.TypeError, Message: text})
}

func (m *Manager) broadcast(code, excludeClientID string, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		m.log.Warn("marshal broadcast", zap.String("type", env.Type), zap.Error(err))
		return
	}
	m.registry.Broadcast(code, excludeClientID, data)
}

package room

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps room codes to live rooms. A room is present iff it has at
// least one member; callers must invoke RemoveIfEmpty after any removal (or
// after a rejected add that may have created the room).
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	log   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// GetOrCreate returns the room for code, creating an empty one if needed.
// Callers validate the code format beforehand.
func (g *Registry) GetOrCreate(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		r = newRoom(code)
		g.rooms[code] = r
		g.log.Info("room created", zap.String("code", code))
	}
	return r
}

// Get returns the room for code if it exists.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[code]
	return r, ok
}

// RemoveIfEmpty drops the room for code when its member count is zero.
func (g *Registry) RemoveIfEmpty(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return
	}
	if r.Size() == 0 {
		delete(g.rooms, code)
		g.log.Info("room removed", zap.String("code", code))
	}
}

// Broadcast sends payload to every open member of the room at code except
// excludeClientID. Delivery is fire-and-forget: a failed send to one member
// never aborts delivery to the others. A missing room is a no-op.
func (g *Registry) Broadcast(code, excludeClientID string, payload []byte) {
	g.mu.RLock()
	r, ok := g.rooms[code]
	g.mu.RUnlock()

	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, m := range r.members {
		if id == excludeClientID {
			continue
		}
		if !m.conn.IsOpen() {
			continue
		}
		if err := m.conn.Send(payload); err != nil {
			g.log.Debug("dropped broadcast to member",
				zap.String("code", code),
				zap.String("clientId", id),
				zap.Error(err))
		}
	}
}

// Stats returns the number of active rooms and members across all rooms.
func (g *Registry) Stats() (rooms, clients int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rooms = len(g.rooms)
	for _, r := range g.rooms {
		clients += r.Size()
	}
	return rooms, clients
}

// ActiveRooms returns a snapshot of room codes and their member counts.
func (g *Registry) ActiveRooms() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]int, len(g.rooms))
	for code, r := range g.rooms {
		out[code] = r.Size()
	}
	return out
}

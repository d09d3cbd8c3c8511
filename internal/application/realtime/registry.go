package realtime

import (
	"sync"

	"github.com/estatehub/realtime/internal/domain"
)

// Conn is a live client connection as seen by the registry and dispatcher.
// Send must not block; a connection that cannot accept msg returns an error.
type Conn interface {
	ID() string
	Send(msg []byte) error
}

type member struct {
	conn  Conn
	rooms map[string]struct{}
}

// Registry maps live connections to the rooms they joined and rooms to their members.
// Every exported method is safe for concurrent use; readers receive copies.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*member
	rooms map[string]map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*member),
		rooms: make(map[string]map[string]Conn),
	}
}

// Register adds conn with an empty membership set. Registering an id twice keeps the existing memberships.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = &member{conn: conn, rooms: make(map[string]struct{})}
}

// Join adds the connection to room. It reports false, without error, when the connection is unknown.
func (r *Registry) Join(connID string, room domain.Room) bool {
	if !room.Valid() {
		return false
	}
	key := room.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.conns[connID]
	if !ok {
		return false
	}
	m.rooms[key] = struct{}{}
	members, ok := r.rooms[key]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[key] = members
	}
	members[connID] = m.conn
	return true
}

// Leave removes the connection from room.
func (r *Registry) Leave(connID string, room domain.Room) {
	key := room.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.conns[connID]; ok {
		delete(m.rooms, key)
	}
	r.removeFromRoom(key, connID)
}

// UnregisterAll drops the connection and every membership it holds.
func (r *Registry) UnregisterAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.conns[connID]
	if !ok {
		return
	}
	for key := range m.rooms {
		r.removeFromRoom(key, connID)
	}
	delete(r.conns, connID)
}

// removeFromRoom must be called with mu held.
func (r *Registry) removeFromRoom(key, connID string) {
	members, ok := r.rooms[key]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, key)
	}
}

// MembersOf returns the current members of room. The global room holds every registered connection.
func (r *Registry) MembersOf(room domain.Room) []Conn {
	if room.Kind() == domain.RoomGlobal {
		return r.All()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room.Key()]
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// All returns every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, m := range r.conns {
		out = append(out, m.conn)
	}
	return out
}

// RoomsOf returns the room keys connID has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m.rooms))
	for key := range m.rooms {
		out = append(out, key)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

package websocket

import (
	"log"
	"sync"
)

// Registry tracks live client connections for notification fan-out: a
// global userID map for direct intents and a per-room map for room-wide
// intents. Pure connection bookkeeping; no session state lives here.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // userID -> Connection
	rooms       map[string]map[string]*Connection // roomID -> userID -> Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
	}
}

// Register adds a connection to both maps atomically. A user reconnecting
// replaces their previous connection; the stale one is closed
// asynchronously to avoid holding the lock across Close.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsIdentified() {
		return ErrConnectionNotIdentified
	}

	userID := conn.UserID()
	roomID := conn.RoomID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[userID]; ok {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection for user %s: %v", userID, err)
			}
		}()
	}

	r.connections[userID] = conn
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*Connection)
	}
	r.rooms[roomID][userID] = conn

	return nil
}

// Unregister removes a connection, but only while it is still the one
// registered for its user: a reconnect must not be torn down by the old
// connection's cleanup. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.connections[userID]
	if !ok || registered != conn {
		return
	}

	delete(r.connections, userID)

	roomID := conn.RoomID()
	if room, ok := r.rooms[roomID]; ok {
		delete(room, userID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// UserConnection returns the current connection for a user.
func (r *Registry) UserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[userID]
	return conn, ok
}

// RoomConnections returns every connection attached to a room.
func (r *Registry) RoomConnections(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	connections := make([]*Connection, 0, len(room))
	for _, conn := range room {
		connections = append(connections, conn)
	}
	return connections
}

// Stats reports connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
	}
}

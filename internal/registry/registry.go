package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyhall/pkg/types"
)

// Registry is the authoritative in-memory store of session records and the
// room→active-session index. It enforces the one-active-session-per-room
// invariant at creation time and performs no I/O and no cross-entity
// mutation; user stats are somebody else's problem.
//
// The record store and the active index are deliberately separate: ending a
// session releases the room immediately while the record stays resolvable
// by ID for late status queries, until the janitor sweeps it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session // sessionID -> record
	active   map[string]string         // roomID -> active sessionID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*types.Session),
		active:   make(map[string]string),
	}
}

// newSessionID allocates a unique session ID. Room and timestamp keep IDs
// readable in logs; the uuid suffix makes collisions impossible even for
// two sessions created in the same room within one second.
func newSessionID(roomID string, now time.Time) string {
	return fmt.Sprintf("session_%s_%d_%s", roomID, now.Unix(), uuid.NewString()[:8])
}

// Create allocates and stores a new session for the room, failing with
// ErrRoomBusy if the room already has an active session. The creator is
// auto-enrolled for private sessions; group sessions start with an empty
// roster.
func (r *Registry) Create(roomID string, creator types.UserRef, private bool, duration time.Duration, now time.Time) (*types.Session, error) {
	if !types.IsValidRoomID(roomID) {
		return nil, types.ErrInvalidRoomID
	}
	if err := creator.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, busy := r.active[roomID]; busy {
		if existing, ok := r.sessions[id]; ok {
			return nil, &RoomBusyError{RoomID: roomID, Existing: existing}
		}
		// Dangling index entry; repair and continue.
		delete(r.active, roomID)
	}

	session := &types.Session{
		ID:               newSessionID(roomID, now),
		RoomID:           roomID,
		CreatorID:        creator.ID,
		CreatorName:      creator.DisplayName(),
		Private:          private,
		Participants:     make(map[string]*types.Participant),
		RemainingSeconds: int(duration.Seconds()),
		Active:           true,
		StartedAt:        now,
		LastUpdatedAt:    now,
	}

	if private {
		session.Participants[creator.ID] = &types.Participant{
			DisplayName: creator.DisplayName(),
			JoinedAt:    now,
			Active:      true,
		}
		session.Stats.Joins = 1
	}

	r.sessions[session.ID] = session
	r.active[roomID] = session.ID

	return session, nil
}

// ActiveByRoom resolves the room's currently active session, if any.
func (r *Registry) ActiveByRoom(roomID string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[roomID]
	if !ok {
		return nil, false
	}
	session, ok := r.sessions[id]
	return session, ok
}

// ByID resolves any known session record, active or ended.
func (r *Registry) ByID(sessionID string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	return session, ok
}

// ReleaseRoom clears the room→active mapping, but only while it still points
// at sessionID. The loser of a termination race must not release a room that
// a successor session has since claimed. The session record itself survives
// for late status queries.
func (r *Registry) ReleaseRoom(roomID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[roomID] == sessionID {
		delete(r.active, roomID)
	}
}

// Sweep evicts ended session records whose termination is older than the
// retention window. Active sessions are never evicted. Returns the number
// of records removed.
func (r *Registry) Sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		session.Lock()
		expired := !session.Active && !session.EndedAt.IsZero() && now.Sub(session.EndedAt) > retention
		session.Unlock()
		if expired {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Counts reports the number of stored records and active rooms.
func (r *Registry) Counts() (sessions, activeRooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.active)
}

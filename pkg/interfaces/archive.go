package interfaces

import (
	"context"
	"errors"

	"studyhall/pkg/types"
)

// ErrSessionNotFound is returned by archive lookups for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Archiver persists terminal session records and user profile snapshots.
//
// Archiving is best effort: the engine treats write failures as loggable
// events, never as reasons to abort or roll back a termination. Active
// session state never touches the archive.
type Archiver interface {
	// ArchiveSession stores the terminal snapshot of an ended session.
	ArchiveSession(ctx context.Context, snap types.SessionSnapshot) error

	// SaveUserProfile upserts a profile snapshot after a stats rollup.
	SaveUserProfile(ctx context.Context, profile *types.UserProfile) error

	// GetArchivedSession resolves an ended session evicted from memory.
	GetArchivedSession(ctx context.Context, sessionID string) (*types.SessionSnapshot, error)

	// ListRecentSessions returns the most recently ended sessions.
	ListRecentSessions(ctx context.Context, limit int) ([]*types.SessionSnapshot, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}

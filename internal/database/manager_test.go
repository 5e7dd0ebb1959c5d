package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dbconfig "studyhall/pkg/database"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func sampleSnapshot(id string) types.SessionSnapshot {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return types.SessionSnapshot{
		ID:          id,
		RoomID:      "room-1",
		CreatorID:   "alice",
		CreatorName: "Alice",
		State:       types.StateEnded,
		Participants: []types.RosterEntry{
			{UserID: "alice", DisplayName: "Alice", JoinedAt: started, Active: true},
			{UserID: "bob", DisplayName: "Bob", JoinedAt: started.Add(time.Minute), Active: false},
		},
		Stats:     types.SessionStats{Joins: 2, Leaves: 1, Completions: 1},
		StartedAt: started,
		EndedAt:   started.Add(55 * time.Minute),
		EndCause:  types.CauseTimeout,
	}
}

func TestArchiveAndGetSession(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	snap := sampleSnapshot("session-1")
	if err := manager.ArchiveSession(ctx, snap); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}

	got, err := manager.GetArchivedSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetArchivedSession failed: %v", err)
	}
	if got.RoomID != snap.RoomID || got.CreatorID != snap.CreatorID {
		t.Errorf("unexpected session fields: %+v", got)
	}
	if got.State != types.StateEnded {
		t.Errorf("archived sessions must read back as ended, got %q", got.State)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(got.Participants))
	}
	if got.Participants[0].UserID != "alice" || got.Participants[1].Active {
		t.Errorf("unexpected roster: %+v", got.Participants)
	}
	if got.Stats.Completions != 1 {
		t.Errorf("expected stats preserved, got %+v", got.Stats)
	}
	if got.EndCause != types.CauseTimeout {
		t.Errorf("expected timeout cause, got %q", got.EndCause)
	}
}

func TestArchiveSessionIdempotent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	snap := sampleSnapshot("session-1")
	if err := manager.ArchiveSession(ctx, snap); err != nil {
		t.Fatalf("first archive failed: %v", err)
	}

	snap.EndCause = types.CauseManual
	if err := manager.ArchiveSession(ctx, snap); err != nil {
		t.Fatalf("re-archive failed: %v", err)
	}

	got, err := manager.GetArchivedSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetArchivedSession failed: %v", err)
	}
	if got.EndCause != types.CauseManual {
		t.Errorf("expected latest write to win, got %q", got.EndCause)
	}
}

func TestGetArchivedSessionNotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetArchivedSession(context.Background(), "missing")
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListRecentSessions(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	for i, id := range []string{"old", "mid", "new"} {
		snap := sampleSnapshot(id)
		snap.EndedAt = snap.EndedAt.Add(time.Duration(i) * time.Hour)
		if err := manager.ArchiveSession(ctx, snap); err != nil {
			t.Fatalf("ArchiveSession %s failed: %v", id, err)
		}
	}

	snaps, err := manager.ListRecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentSessions failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(snaps))
	}
	if snaps[0].ID != "new" || snaps[1].ID != "mid" {
		t.Errorf("expected newest first, got %s then %s", snaps[0].ID, snaps[1].ID)
	}
}

func TestSaveUserProfileUpsert(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	profile := &types.UserProfile{
		ID:        "alice",
		Username:  "al",
		FirstName: "Alice",
		JoinedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:    types.UserStatusActive,
		StudyStats: types.StudyStats{
			TotalSessions: 1,
			TotalSeconds:  3300,
		},
		Achievements: []string{"first_completion"},
	}
	if err := manager.SaveUserProfile(ctx, profile); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	profile.StudyStats.TotalSessions = 2
	profile.StudyStats.TotalSeconds = 6600
	if err := manager.SaveUserProfile(ctx, profile); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	var total int
	row := manager.db.QueryRow("SELECT total_sessions FROM user_profiles WHERE id = ?", "alice")
	if err := row.Scan(&total); err != nil {
		t.Fatalf("failed to read back profile: %v", err)
	}
	if total != 2 {
		t.Errorf("expected upserted total 2, got %d", total)
	}
}

func TestHealthCheck(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	snap := sampleSnapshot("after-close")
	if err := manager.ArchiveSession(context.Background(), snap); err == nil {
		t.Error("expected write to fail after Close")
	}
}

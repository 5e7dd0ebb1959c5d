package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "studyhall/pkg/database"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// Manager implements interfaces.Archiver over sqlite. All writes are
// funneled through a single writer goroutine; sqlite tolerates concurrent
// reads but contends badly on concurrent writers.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the archive database and starts the writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.Bootstrap(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Archive write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Archive write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Archive write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("archive manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("archive write timeout")
	case <-m.shutdown:
		return fmt.Errorf("archive manager is shutting down")
	}
}

// ArchiveSession stores the terminal snapshot of an ended session.
func (m *Manager) ArchiveSession(ctx context.Context, snap types.SessionSnapshot) error {
	return m.executeWrite(func(db *sql.DB) error {
		participantsJSON, err := json.Marshal(snap.Participants)
		if err != nil {
			return fmt.Errorf("failed to marshal participants: %w", err)
		}
		statsJSON, err := json.Marshal(snap.Stats)
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}

		query := `
			INSERT OR REPLACE INTO sessions
				(id, room_id, creator_id, creator_name, private, participants, stats, end_cause, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			snap.ID,
			snap.RoomID,
			snap.CreatorID,
			snap.CreatorName,
			snap.Private,
			string(participantsJSON),
			string(statsJSON),
			snap.EndCause,
			snap.StartedAt,
			snap.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// SaveUserProfile upserts a profile snapshot after a stats rollup.
func (m *Manager) SaveUserProfile(ctx context.Context, profile *types.UserProfile) error {
	return m.executeWrite(func(db *sql.DB) error {
		achievementsJSON, err := json.Marshal(profile.Achievements)
		if err != nil {
			return fmt.Errorf("failed to marshal achievements: %w", err)
		}

		query := `
			INSERT INTO user_profiles
				(id, username, first_name, last_name, joined_at, status,
				 total_sessions, total_seconds, completed_sessions, last_session_at, achievements)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				total_sessions = excluded.total_sessions,
				total_seconds = excluded.total_seconds,
				completed_sessions = excluded.completed_sessions,
				last_session_at = excluded.last_session_at,
				achievements = excluded.achievements
		`
		_, err = db.ExecContext(ctx, query,
			profile.ID,
			profile.Username,
			profile.FirstName,
			profile.LastName,
			profile.JoinedAt,
			profile.Status,
			profile.StudyStats.TotalSessions,
			profile.StudyStats.TotalSeconds,
			profile.StudyStats.CompletedSessions,
			profile.StudyStats.LastSessionAt,
			string(achievementsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert profile: %w", err)
		}
		return nil
	})
}

// GetArchivedSession resolves an ended session by ID.
func (m *Manager) GetArchivedSession(ctx context.Context, sessionID string) (*types.SessionSnapshot, error) {
	query := `
		SELECT id, room_id, creator_id, creator_name, private, participants, stats, end_cause, started_at, ended_at
		FROM sessions
		WHERE id = ?
	`
	row := m.db.QueryRowContext(ctx, query, sessionID)

	snap, err := scanSnapshot(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query archived session: %w", err)
	}
	return snap, nil
}

// ListRecentSessions returns the most recently ended sessions.
func (m *Manager) ListRecentSessions(ctx context.Context, limit int) ([]*types.SessionSnapshot, error) {
	query := `
		SELECT id, room_id, creator_id, creator_name, private, participants, stats, end_cause, started_at, ended_at
		FROM sessions
		ORDER BY ended_at DESC
		LIMIT ?
	`
	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []*types.SessionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return snaps, nil
}

// scanSnapshot reads one archived session row. Archived sessions are
// terminal by definition: state is ended, remaining time is whatever the
// stats imply and reported as zero.
func scanSnapshot(scan func(dest ...interface{}) error) (*types.SessionSnapshot, error) {
	var snap types.SessionSnapshot
	var participantsJSON, statsJSON string

	err := scan(
		&snap.ID,
		&snap.RoomID,
		&snap.CreatorID,
		&snap.CreatorName,
		&snap.Private,
		&participantsJSON,
		&statsJSON,
		&snap.EndCause,
		&snap.StartedAt,
		&snap.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(participantsJSON), &snap.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &snap.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	snap.State = types.StateEnded
	snap.LastUpdatedAt = snap.EndedAt

	return &snap, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM sessions LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the writer and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}

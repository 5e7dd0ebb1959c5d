package database

import (
	"database/sql"
	"fmt"
)

// Schema for the archive store. Ended sessions and profile snapshots only;
// live state never touches the database. Participants and stats are stored
// as JSON columns since the archive is read back whole, never filtered.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	room_id          TEXT NOT NULL,
	creator_id       TEXT NOT NULL,
	creator_name     TEXT NOT NULL,
	private          INTEGER NOT NULL DEFAULT 0,
	participants     TEXT NOT NULL,
	stats            TEXT NOT NULL,
	end_cause        TEXT NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	ended_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_room ON sessions(room_id);
CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);

CREATE TABLE IF NOT EXISTS user_profiles (
	id                 TEXT PRIMARY KEY,
	username           TEXT,
	first_name         TEXT NOT NULL,
	last_name          TEXT,
	joined_at          TIMESTAMP NOT NULL,
	status             TEXT NOT NULL,
	total_sessions     INTEGER NOT NULL DEFAULT 0,
	total_seconds      INTEGER NOT NULL DEFAULT 0,
	completed_sessions INTEGER NOT NULL DEFAULT 0,
	last_session_at    TIMESTAMP,
	achievements       TEXT NOT NULL DEFAULT '[]'
);
`

// Bootstrap creates the archive tables if they do not exist.
func Bootstrap(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to bootstrap archive schema: %w", err)
	}
	return nil
}

package types

import (
	"sync"
	"time"
)

// Session states reported in snapshots.
const (
	StateWaiting = "waiting" // group session created, quorum not yet reached
	StateRunning = "running" // countdown in progress
	StateEnded   = "ended"   // terminal
)

// Termination causes recorded when a session reaches its terminal state.
const (
	CauseManual  = "manual"
	CauseTimeout = "timeout"
)

// UserStatus values for UserProfile.Status. Banned is reserved in the
// current taxonomy and never assigned by the engine.
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
	UserStatusBanned   = "banned"
)

// Participant is one member of a study session roster.
type Participant struct {
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
	Active      bool      `json:"active"`
}

// SessionStats are per-session counters, monotonically incremented while
// the session is active and never reset.
type SessionStats struct {
	Joins       int `json:"joins"`
	Leaves      int `json:"leaves"`
	Extensions  int `json:"extensions"`
	Completions int `json:"completions"`
}

// Session represents one timed study gathering scoped to a room (group
// sessions) or to the initiating user (private sessions).
//
// The embedded mutex is the mutual-exclusion domain for the record: every
// cross-field read or write goes through it. The Active true→false
// transition is a check-and-set under this mutex, so termination executes
// at most once even when a manual end races the countdown.
type Session struct {
	sync.Mutex `json:"-"`

	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	CreatorID   string `json:"creator_id"`
	CreatorName string `json:"creator_name"`
	Private     bool   `json:"private"`

	Participants map[string]*Participant `json:"participants"`

	RemainingSeconds int          `json:"remaining_seconds"`
	Active           bool         `json:"active"`
	Pinned           bool         `json:"pinned"`
	AnchorMessageRef string       `json:"anchor_message_ref,omitempty"`
	Stats            SessionStats `json:"stats"`

	StartedAt     time.Time `json:"started_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	EndedAt       time.Time `json:"ended_at,omitzero"`
	EndCause      string    `json:"end_cause,omitempty"`

	// TimerCancel is non-nil only while a countdown goroutine is live.
	// Guarded by the session mutex; cleared exactly once on termination.
	TimerCancel func() `json:"-"`
}

// RosterEntry is a participant paired with its user ID for ordered display.
type RosterEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
	Active      bool      `json:"active"`
}

// SessionSnapshot is a read-only projection of a session record. Snapshots
// are safe to hand to presentation code without further locking.
type SessionSnapshot struct {
	ID               string        `json:"id"`
	RoomID           string        `json:"room_id"`
	CreatorID        string        `json:"creator_id"`
	CreatorName      string        `json:"creator_name"`
	Private          bool          `json:"private"`
	State            string        `json:"state"`
	Active           bool          `json:"active"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Participants     []RosterEntry `json:"participants"`
	Stats            SessionStats  `json:"stats"`
	StartedAt        time.Time     `json:"started_at"`
	LastUpdatedAt    time.Time     `json:"last_updated_at"`
	EndedAt          time.Time     `json:"ended_at,omitzero"`
	EndCause         string        `json:"end_cause,omitempty"`
}

// StudyStats is a user's cross-session history.
type StudyStats struct {
	TotalSessions     int       `json:"total_sessions"`
	TotalSeconds      int       `json:"total_seconds"`
	CompletedSessions int       `json:"completed_sessions"`
	LastSessionAt     time.Time `json:"last_session_at,omitzero"`
}

// Preferences are per-user notification settings.
type Preferences struct {
	NotificationsEnabled bool   `json:"notifications_enabled"`
	MotivationEnabled    bool   `json:"motivation_enabled"`
	Locale               string `json:"locale"`
}

// UserProfile is a platform user's cross-session record, created lazily on
// first contact and kept for the process lifetime.
type UserProfile struct {
	ID           string      `json:"id"`
	Username     string      `json:"username,omitempty"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name,omitempty"`
	JoinedAt     time.Time   `json:"joined_at"`
	Status       string      `json:"status"`
	StudyStats   StudyStats  `json:"study_stats"`
	Achievements []string    `json:"achievements"`
	Preferences  Preferences `json:"preferences"`
}

// DisplayName renders the profile's name the way the roster shows it:
// @username when set, otherwise first plus last name.
func (p *UserProfile) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	if p.LastName != "" {
		return p.FirstName + " " + p.LastName
	}
	return p.FirstName
}

// HasAchievement reports whether the achievement tag is already present.
func (p *UserProfile) HasAchievement(tag string) bool {
	for _, a := range p.Achievements {
		if a == tag {
			return true
		}
	}
	return false
}

// UserRef identifies the user behind an inbound event, as supplied by the
// presentation layer.
type UserRef struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName mirrors UserProfile.DisplayName for raw user references.
func (u UserRef) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.ID
}

// Notification kinds emitted by the engine. The hub delivers them verbatim;
// formatting belongs to the clients.
const (
	NoteSessionCreated  = "session_created"
	NoteRosterChanged   = "roster_changed"
	NoteWelcome         = "welcome"
	NoteSessionExtended = "session_extended"
	NoteSessionEnded    = "session_ended"
	NoteBreakTime       = "break_time"
)

// Notification is a delivery intent. RoomID is set for room-wide intents,
// UserID for direct intents; the engine never sets both.
type Notification struct {
	Kind      string                 `json:"kind"`
	SessionID string                 `json:"session_id"`
	RoomID    string                 `json:"room_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

package engine

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"studyhall/internal/registry"
	"studyhall/internal/stats"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// Config carries the tunables of the lifecycle engine.
type Config struct {
	// SessionDuration is the countdown a session starts (and extends) with.
	SessionDuration time.Duration
	// TickInterval is the countdown decrement granularity.
	TickInterval time.Duration
	// Quorum is the participant count that starts a group session's timer.
	Quorum int
}

// Engine owns the session lifecycle: creation, membership, extension,
// manual and automatic termination, countdown scheduling, and the stats
// rollup at termination. It is safe to call from any number of concurrent
// inbound events; per-record locking keeps unrelated sessions independent.
type Engine struct {
	registry *registry.Registry
	stats    *stats.Store
	notifier interfaces.Notifier
	archiver interfaces.Archiver
	clock    interfaces.Clock
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a lifecycle engine. notifier, archiver and clock may be nil,
// in which case intents are dropped, archiving is skipped and the system
// clock is used.
func New(reg *registry.Registry, store *stats.Store, notifier interfaces.Notifier, archiver interfaces.Archiver, clock interfaces.Clock, cfg Config) *Engine {
	if notifier == nil {
		notifier = interfaces.NopNotifier{}
	}
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		registry: reg,
		stats:    store,
		notifier: notifier,
		archiver: archiver,
		clock:    clock,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// JoinOutcome reports the result of a join request. AlreadyJoined joins are
// soft outcomes, not failures: the roster is unchanged and nothing is
// double-counted.
type JoinOutcome struct {
	AlreadyJoined    bool `json:"already_joined"`
	ParticipantCount int  `json:"participant_count"`
}

// TerminationOutcome reports the result of an end request. AlreadyEnded
// distinguishes a newly terminated session from an idempotent re-end so the
// caller can suppress duplicate notifications.
type TerminationOutcome struct {
	Session      types.SessionSnapshot `json:"session"`
	AlreadyEnded bool                  `json:"already_ended"`
}

// Start opens a new session in the room. Group sessions begin with an empty
// roster and no countdown; the timer starts once the roster reaches quorum.
// Private sessions auto-enroll the creator and start counting immediately.
//
// A busy room fails with a registry.RoomBusyError carrying the existing
// session, so the caller can offer to end it.
func (e *Engine) Start(ctx context.Context, roomID string, creator types.UserRef, private bool) (*types.Session, error) {
	now := e.clock.Now()
	session, err := e.registry.Create(roomID, creator, private, e.cfg.SessionDuration, now)
	if err != nil {
		return nil, err
	}

	e.stats.CountSession()
	e.stats.ProfileFor(creator)

	if private {
		e.stats.CountParticipation()
		session.Lock()
		e.startCountdownLocked(session)
		session.Unlock()
	}

	log.Printf("Session created: id=%s room=%s creator=%s private=%t", session.ID, roomID, creator.ID, private)

	e.notifier.NotifyRoom(roomID, types.Notification{
		Kind:      types.NoteSessionCreated,
		SessionID: session.ID,
		RoomID:    roomID,
		Payload: map[string]interface{}{
			"creator_name":     session.CreatorName,
			"duration_seconds": int(e.cfg.SessionDuration.Seconds()),
			"private":          private,
		},
		Timestamp: now,
	})

	return session, nil
}

// Join adds a user to the session roster. Joining twice is a no-op reported
// as AlreadyJoined. Reaching quorum starts the group countdown, exactly
// once even under concurrent duplicate triggers.
func (e *Engine) Join(ctx context.Context, sessionID string, user types.UserRef) (JoinOutcome, error) {
	if err := user.Validate(); err != nil {
		return JoinOutcome{}, err
	}
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return JoinOutcome{}, ErrSessionNotFound
	}

	now := e.clock.Now()

	session.Lock()
	if !session.Active {
		session.Unlock()
		return JoinOutcome{}, ErrSessionEnded
	}
	if _, joined := session.Participants[user.ID]; joined {
		count := len(session.Participants)
		session.Unlock()
		return JoinOutcome{AlreadyJoined: true, ParticipantCount: count}, nil
	}

	session.Participants[user.ID] = &types.Participant{
		DisplayName: user.DisplayName(),
		JoinedAt:    now,
		Active:      true,
	}
	session.Stats.Joins++
	session.LastUpdatedAt = now
	count := len(session.Participants)
	if !session.Private && count >= e.cfg.Quorum {
		e.startCountdownLocked(session)
	}
	roomID := session.RoomID
	session.Unlock()

	e.stats.CountParticipation()
	e.stats.ProfileFor(user)

	log.Printf("Participant joined: session=%s user=%s count=%d", sessionID, user.ID, count)

	e.notifier.NotifyRoom(roomID, types.Notification{
		Kind:      types.NoteRosterChanged,
		SessionID: sessionID,
		RoomID:    roomID,
		Payload:   map[string]interface{}{"participant_count": count},
		Timestamp: now,
	})
	e.notifier.NotifyUser(user.ID, types.Notification{
		Kind:      types.NoteWelcome,
		SessionID: sessionID,
		UserID:    user.ID,
		Payload:   map[string]interface{}{"duration_seconds": int(e.cfg.SessionDuration.Seconds())},
		Timestamp: now,
	})

	return JoinOutcome{ParticipantCount: count}, nil
}

// Leave marks a participant inactive. The roster entry is retained for
// display; a running countdown is never stopped by departures.
func (e *Engine) Leave(ctx context.Context, sessionID, userID string) error {
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	now := e.clock.Now()

	session.Lock()
	if !session.Active {
		session.Unlock()
		return ErrSessionEnded
	}
	participant, joined := session.Participants[userID]
	if !joined {
		session.Unlock()
		return ErrNotParticipant
	}
	if participant.Active {
		participant.Active = false
		session.Stats.Leaves++
		session.LastUpdatedAt = now
	}
	count := len(session.Participants)
	roomID := session.RoomID
	session.Unlock()

	log.Printf("Participant left: session=%s user=%s", sessionID, userID)

	e.notifier.NotifyRoom(roomID, types.Notification{
		Kind:      types.NoteRosterChanged,
		SessionID: sessionID,
		RoomID:    roomID,
		Payload:   map[string]interface{}{"participant_count": count},
		Timestamp: now,
	})
	return nil
}

// Extend resets the countdown to the full duration. Only the session's
// creator may extend, and only while the session is still live; a finished
// timer is never restarted.
func (e *Engine) Extend(ctx context.Context, sessionID, userID string) error {
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	now := e.clock.Now()

	session.Lock()
	if session.CreatorID != userID {
		session.Unlock()
		return ErrUnauthorized
	}
	if !session.Active {
		session.Unlock()
		return ErrSessionEnded
	}
	session.RemainingSeconds = int(e.cfg.SessionDuration.Seconds())
	session.Stats.Extensions++
	session.LastUpdatedAt = now
	remaining := session.RemainingSeconds
	roomID := session.RoomID
	session.Unlock()

	log.Printf("Session extended: session=%s user=%s", sessionID, userID)

	e.notifier.NotifyRoom(roomID, types.Notification{
		Kind:      types.NoteSessionExtended,
		SessionID: sessionID,
		RoomID:    roomID,
		Payload:   map[string]interface{}{"remaining_seconds": remaining},
		Timestamp: now,
	})
	e.notifier.NotifyUser(userID, types.Notification{
		Kind:      types.NoteSessionExtended,
		SessionID: sessionID,
		UserID:    userID,
		Payload:   map[string]interface{}{"remaining_seconds": remaining},
		Timestamp: now,
	})
	return nil
}

// End terminates a session manually. Ending an already-ended session is
// idempotent: the terminal record comes back with AlreadyEnded set and no
// further mutation or notification occurs.
func (e *Engine) End(ctx context.Context, sessionID, actorID string) (TerminationOutcome, error) {
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return TerminationOutcome{}, ErrSessionNotFound
	}
	outcome := e.terminate(ctx, session, types.CauseManual)
	if !outcome.AlreadyEnded {
		log.Printf("Session ended: session=%s actor=%s", sessionID, actorID)
	}
	return outcome, nil
}

// Status returns a read-only snapshot of the session, if known.
func (e *Engine) Status(sessionID string) (types.SessionSnapshot, bool) {
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return types.SessionSnapshot{}, false
	}
	session.Lock()
	snap := snapshotLocked(session)
	session.Unlock()
	return snap, true
}

// Stop cancels every live countdown and waits for the timer goroutines to
// exit. Sessions are left as-is; shutdown is not termination.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// timeout is the terminal path taken when a countdown reaches zero. Elapsed
// time is attributed as the full configured duration.
func (e *Engine) timeout(sessionID string) {
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return
	}
	outcome := e.terminate(context.Background(), session, types.CauseTimeout)
	if !outcome.AlreadyEnded {
		log.Printf("Session timed out: session=%s", sessionID)
	}
}

// terminate performs the at-most-once terminal transition. The active
// true→false check-and-set under the session mutex decides the winner of a
// manual-end/timeout race; the loser observes Active=false and returns the
// terminal record untouched.
func (e *Engine) terminate(ctx context.Context, session *types.Session, cause string) TerminationOutcome {
	now := e.clock.Now()

	session.Lock()
	if !session.Active {
		snap := snapshotLocked(session)
		session.Unlock()
		return TerminationOutcome{Session: snap, AlreadyEnded: true}
	}
	session.Active = false
	session.EndedAt = now
	session.EndCause = cause
	session.LastUpdatedAt = now
	session.Pinned = false

	elapsed := int(e.cfg.SessionDuration.Seconds()) - session.RemainingSeconds
	if cause == types.CauseTimeout {
		elapsed = int(e.cfg.SessionDuration.Seconds())
		session.RemainingSeconds = 0
		session.Stats.Completions++
	}
	if elapsed < 0 {
		elapsed = 0
	}

	cancelTimer := session.TimerCancel
	session.TimerCancel = nil

	participants := make([]string, 0, len(session.Participants))
	for userID := range session.Participants {
		participants = append(participants, userID)
	}
	snap := snapshotLocked(session)
	roomID := session.RoomID
	session.Unlock()

	if cancelTimer != nil {
		cancelTimer()
	}
	e.registry.ReleaseRoom(roomID, snap.ID)

	for _, userID := range participants {
		e.stats.RecordParticipation(ctx, userID, elapsed)
	}

	if e.archiver != nil {
		if err := e.archiver.ArchiveSession(ctx, snap); err != nil {
			log.Printf("Failed to archive session %s: %v", snap.ID, err)
		}
	}

	e.notifier.NotifyRoom(roomID, types.Notification{
		Kind:      types.NoteSessionEnded,
		SessionID: snap.ID,
		RoomID:    roomID,
		Payload: map[string]interface{}{
			"cause":             cause,
			"participant_count": len(participants),
		},
		Timestamp: now,
	})
	for _, userID := range participants {
		e.notifier.NotifyUser(userID, types.Notification{
			Kind:      types.NoteBreakTime,
			SessionID: snap.ID,
			UserID:    userID,
			Payload:   map[string]interface{}{"elapsed_seconds": elapsed},
			Timestamp: now,
		})
	}

	return TerminationOutcome{Session: snap}
}

// snapshotLocked projects the record into an immutable snapshot. Caller
// holds the session mutex. Roster order follows join time for display.
func snapshotLocked(s *types.Session) types.SessionSnapshot {
	roster := make([]types.RosterEntry, 0, len(s.Participants))
	for userID, p := range s.Participants {
		roster = append(roster, types.RosterEntry{
			UserID:      userID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt,
			Active:      p.Active,
		})
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].UserID < roster[j].UserID
		}
		return roster[i].JoinedAt.Before(roster[j].JoinedAt)
	})

	state := types.StateEnded
	if s.Active {
		if s.TimerCancel != nil {
			state = types.StateRunning
		} else {
			state = types.StateWaiting
		}
	}

	return types.SessionSnapshot{
		ID:               s.ID,
		RoomID:           s.RoomID,
		CreatorID:        s.CreatorID,
		CreatorName:      s.CreatorName,
		Private:          s.Private,
		State:            state,
		Active:           s.Active,
		RemainingSeconds: s.RemainingSeconds,
		Participants:     roster,
		Stats:            s.Stats,
		StartedAt:        s.StartedAt,
		LastUpdatedAt:    s.LastUpdatedAt,
		EndedAt:          s.EndedAt,
		EndCause:         s.EndCause,
	}
}

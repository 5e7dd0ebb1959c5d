package stats

import (
	"context"
	"log"
	"sync"
	"time"

	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// AchievementFirstCompletion is appended on a user's first completed session.
const AchievementFirstCompletion = "first_completion"

// placeholderName is used when identity resolution fails; the engine never
// aborts an operation over a missing display name.
const placeholderName = "guest"

// Store owns all per-user cumulative study statistics plus the process-wide
// counters. It is its own mutual-exclusion domain, independent of the
// session registry, and is mutated by the lifecycle engine only at session
// termination.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*types.UserProfile

	totalSessions       int
	totalParticipations int
	startedAt           time.Time

	completionThreshold int // seconds of elapsed study that count as a completion

	clock    interfaces.Clock
	resolver interfaces.IdentityResolver
	archiver interfaces.Archiver
}

// Overview is a snapshot of the process-wide counters.
type Overview struct {
	TotalSessions       int       `json:"total_sessions"`
	TotalParticipations int       `json:"total_participations"`
	ActiveUsers         int       `json:"active_users"`
	StartedAt           time.Time `json:"started_at"`
}

// NewStore creates a stats store. resolver and archiver may be nil; the
// store then falls back to placeholder identities and skips persistence.
func NewStore(completionThreshold int, clock interfaces.Clock, resolver interfaces.IdentityResolver, archiver interfaces.Archiver) *Store {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &Store{
		profiles:            make(map[string]*types.UserProfile),
		startedAt:           clock.Now(),
		completionThreshold: completionThreshold,
		clock:               clock,
		resolver:            resolver,
		archiver:            archiver,
	}
}

// Profile returns the user's profile, creating it lazily on first contact.
// Identity resolution failures degrade to a placeholder first name.
func (s *Store) Profile(ctx context.Context, userID string) *types.UserProfile {
	s.mu.RLock()
	profile, ok := s.profiles[userID]
	s.mu.RUnlock()
	if ok {
		return profile
	}

	ref := types.UserRef{ID: userID, FirstName: placeholderName}
	if s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, userID)
		if err != nil {
			log.Printf("Identity resolution failed for user %s, using placeholder: %v", userID, err)
		} else {
			ref = resolved
		}
	}

	return s.ProfileFor(ref)
}

// ProfileFor returns the profile for a known user reference, creating it
// from the supplied identity fields if absent. Identity fields are captured
// at first contact and never overwritten.
func (s *Store) ProfileFor(user types.UserRef) *types.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile, ok := s.profiles[user.ID]; ok {
		return profile
	}

	profile := &types.UserProfile{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		JoinedAt:  s.clock.Now(),
		Status:    types.UserStatusActive,
		Preferences: types.Preferences{
			NotificationsEnabled: true,
			MotivationEnabled:    true,
			Locale:               "en",
		},
	}
	if profile.FirstName == "" {
		profile.FirstName = placeholderName
	}
	s.profiles[user.ID] = profile
	return profile
}

// RecordParticipation applies the per-participant rollup at session
// termination: one more session and the elapsed seconds of study. Past the
// completion threshold it also credits a completed session plus the
// first-completion achievement (append-only, deduplicated).
func (s *Store) RecordParticipation(ctx context.Context, userID string, elapsedSeconds int) {
	profile := s.Profile(ctx, userID)

	s.mu.Lock()
	profile.StudyStats.TotalSessions++
	profile.StudyStats.TotalSeconds += elapsedSeconds
	profile.StudyStats.LastSessionAt = s.clock.Now()
	if elapsedSeconds >= s.completionThreshold {
		profile.StudyStats.CompletedSessions++
		if !profile.HasAchievement(AchievementFirstCompletion) {
			profile.Achievements = append(profile.Achievements, AchievementFirstCompletion)
		}
	}
	snapshot := *profile
	s.mu.Unlock()

	if s.archiver != nil {
		if err := s.archiver.SaveUserProfile(ctx, &snapshot); err != nil {
			log.Printf("Failed to persist profile for user %s: %v", userID, err)
		}
	}
}

// Snapshot returns a copy of the user's profile for read-only surfaces.
// The second return reports whether the user is known to the store.
func (s *Store) Snapshot(userID string) (types.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return types.UserProfile{}, false
	}
	snapshot := *profile
	snapshot.Achievements = append([]string(nil), profile.Achievements...)
	return snapshot, true
}

// CountSession bumps the process-wide session counter.
func (s *Store) CountSession() {
	s.mu.Lock()
	s.totalSessions++
	s.mu.Unlock()
}

// CountParticipation bumps the process-wide participation counter.
func (s *Store) CountParticipation() {
	s.mu.Lock()
	s.totalParticipations++
	s.mu.Unlock()
}

// Overview returns the process-wide counters for status surfaces.
func (s *Store) Overview() Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Overview{
		TotalSessions:       s.totalSessions,
		TotalParticipations: s.totalParticipations,
		ActiveUsers:         len(s.profiles),
		StartedAt:           s.startedAt,
	}
}

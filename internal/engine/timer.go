package engine

import (
	"context"

	"studyhall/pkg/types"
)

// startCountdownLocked spawns the countdown task for a session. Caller
// holds the session mutex. At most one task is ever live per session: a
// non-nil TimerCancel means one is already running and a duplicate quorum
// trigger is ignored.
func (e *Engine) startCountdownLocked(s *types.Session) {
	if s.TimerCancel != nil || !s.Active {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	s.TimerCancel = cancel

	e.wg.Add(1)
	go e.runCountdown(ctx, s.ID)
}

// runCountdown is the per-session countdown task. Each cycle it sleeps one
// tick interval, then applies a single decrement step. The cancellation
// signal is checked both before and after the sleep so a tick racing a
// manual end never applies a stale decrement.
func (e *Engine) runCountdown(ctx context.Context, sessionID string) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(e.cfg.TickInterval):
		}
		if ctx.Err() != nil {
			return
		}
		if !e.tick(sessionID) {
			return
		}
	}
}

// tick applies one countdown step and reports whether the task should keep
// running. A missing or inactive session is the normal exit path for
// sessions ended manually while the task was asleep. Hitting zero triggers
// automatic termination.
func (e *Engine) tick(sessionID string) bool {
	session, ok := e.registry.ByID(sessionID)
	if !ok {
		return false
	}

	session.Lock()
	if !session.Active {
		session.Unlock()
		return false
	}
	session.RemainingSeconds -= int(e.cfg.TickInterval.Seconds())
	if session.RemainingSeconds < 0 {
		session.RemainingSeconds = 0
	}
	session.LastUpdatedAt = e.clock.Now()
	expired := session.RemainingSeconds <= 0
	session.Unlock()

	if expired {
		e.timeout(sessionID)
		return false
	}
	return true
}

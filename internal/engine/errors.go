package engine

import "errors"

// Expected-outcome taxonomy for lifecycle operations. Every operation is
// total over these: validation happens strictly before mutation, so a
// failed operation leaves no partial state behind.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrUnauthorized    = errors.New("user not authorized for this session")
	ErrNotParticipant  = errors.New("user is not a participant of this session")
)

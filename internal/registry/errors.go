package registry

import (
	"errors"
	"fmt"

	"studyhall/pkg/types"
)

// ErrRoomBusy matches any RoomBusyError via errors.Is.
var ErrRoomBusy = errors.New("room already has an active session")

// RoomBusyError reports a failed create against a busy room and carries the
// existing session so the caller can offer to end it.
type RoomBusyError struct {
	RoomID   string
	Existing *types.Session
}

func (e *RoomBusyError) Error() string {
	return fmt.Sprintf("room %s already has an active session %s", e.RoomID, e.Existing.ID)
}

func (e *RoomBusyError) Is(target error) bool { return target == ErrRoomBusy }

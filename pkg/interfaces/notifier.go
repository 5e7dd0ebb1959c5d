package interfaces

import "studyhall/pkg/types"

// Notifier consumes notification intents emitted by the lifecycle engine.
//
// Delivery is fire-and-forget: implementations own their failures
// (log-and-continue) and must never block the caller beyond a channel
// hand-off. There is no return value; a failed delivery never rolls back a
// state transition.
type Notifier interface {
	// NotifyRoom delivers an intent to every client attached to a room.
	NotifyRoom(roomID string, note types.Notification)

	// NotifyUser delivers an intent directly to one user.
	NotifyUser(userID string, note types.Notification)
}

// NopNotifier discards all intents. Used when no delivery transport is
// wired, and in tests.
type NopNotifier struct{}

func (NopNotifier) NotifyRoom(string, types.Notification) {}
func (NopNotifier) NotifyUser(string, types.Notification) {}

package types

import "regexp"

var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	roomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_:-]{1,64}$`)
)

// IsValidUserID reports whether id is acceptable as a platform user ID.
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// IsValidRoomID reports whether id is acceptable as a room ID. Private
// sessions use the initiating user's ID as the room ID, so every valid
// user ID is also a valid room ID.
func IsValidRoomID(id string) bool {
	return roomIDRegex.MatchString(id)
}

// Validate checks the identity fields of an inbound user reference.
func (u UserRef) Validate() error {
	if !IsValidUserID(u.ID) {
		return ErrInvalidUserID
	}
	return nil
}

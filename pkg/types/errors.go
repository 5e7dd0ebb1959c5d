package types

import "errors"

var (
	ErrInvalidUserID = errors.New("user ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRoomID = errors.New("room ID must be 1-64 characters, alphanumeric plus underscore/hyphen/colon")
)

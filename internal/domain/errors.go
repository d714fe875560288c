package domain

import "errors"

var (
	// ErrInvalidKey is returned when a trust mutation is attempted on a
	// cross-signing key that fails validity.
	ErrInvalidKey = errors.New("invalid key")

	// ErrRoomCreation is returned when no direct room could be obtained for
	// an interactive verification.
	ErrRoomCreation = errors.New("could not create direct room")

	// ErrUnknownUser is returned when a user id is not present in the
	// directory or store.
	ErrUnknownUser = errors.New("unknown user")
)

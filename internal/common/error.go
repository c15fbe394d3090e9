package common

import "errors"

var (
	// ErrSlotUnavailable marks a substrate slot that cannot be reached,
	// typically a lost file lock or an unopenable database. The fallback
	// layer reacts by degrading to memory.
	ErrSlotUnavailable = errors.New("storage slot unavailable")

	// ErrInvalidToken marks a bearer credential that could not be decoded.
	ErrInvalidToken = errors.New("invalid token")
)

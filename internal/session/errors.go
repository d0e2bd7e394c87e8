package session

import "errors"

// Domain errors for the session package.
//
//	if errors.Is(err, session.ErrAlreadyConnected) {
//	    // report 409
//	}
var (
	// ErrNotFound is returned when no persisted target has the given ID.
	ErrNotFound = errors.New("session: target not found")

	// ErrAlreadyConnected is returned when a live or connecting session exists.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrNotConnected is returned when no live session exists for the ID.
	ErrNotConnected = errors.New("session: not connected")

	// ErrConnectionFailed wraps transport errors from the dialer. Not retried.
	ErrConnectionFailed = errors.New("session: connection failed")

	// ErrInvalidTarget is returned when target validation fails.
	ErrInvalidTarget = errors.New("session: invalid target")

	// ErrTargetExists is returned when creating a target with a duplicate ID.
	ErrTargetExists = errors.New("session: target already exists")
)

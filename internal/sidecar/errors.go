package sidecar

import "errors"

var (
	// ErrInvalidConfig is returned when a sidecar has no name or command.
	ErrInvalidConfig = errors.New("sidecar: invalid config")

	// ErrDuplicateName is returned when two sidecars in a group share a name.
	ErrDuplicateName = errors.New("sidecar: duplicate name")

	// ErrAlreadyRunning is returned by Start on a process that is not stopped.
	ErrAlreadyRunning = errors.New("sidecar: already running")

	// ErrExited records a clean exit nobody asked for.
	ErrExited = errors.New("sidecar: exited unexpectedly")
)

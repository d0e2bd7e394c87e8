package flash

import "errors"

// Domain errors for the flash executor.
var (
	// ErrActionFailed is returned by Flash when a step failed. Cleanup has
	// already been attempted.
	ErrActionFailed = errors.New("flash: action execution failed")

	// ErrCancelled is returned by Flash when the session disconnected or the
	// executor closed mid-sequence.
	ErrCancelled = errors.New("flash: cancelled")

	// ErrInvalidRequest is returned for requests missing a target or with a
	// duration outside (0, max flash time).
	ErrInvalidRequest = errors.New("flash: invalid request")

	// ErrQueueFull is returned by Submit when the lane is at capacity.
	ErrQueueFull = errors.New("flash: queue full")

	// ErrExecutorClosed is returned by Submit after Close.
	ErrExecutorClosed = errors.New("flash: executor closed")
)

package obs

import "errors"

var (
	// ErrTimeout is returned when the scene bridge does not answer in time.
	ErrTimeout = errors.New("obs: request timed out")

	// ErrRejected is returned when the scene bridge answers ok=false.
	ErrRejected = errors.New("obs: request rejected")

	// ErrClosed is returned for calls on a closed client or stopped bridge.
	ErrClosed = errors.New("obs: closed")

	// ErrPublishFailed is returned when a request cannot be sent.
	ErrPublishFailed = errors.New("obs: publish failed")
)

package mqtt

import "errors"

// Bus errors. Callers match them with errors.Is; the wrapped message
// carries the topic or broker detail.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidTopic covers empty topics, wildcards in a publish topic and
	// malformed subscription filters.
	ErrInvalidTopic    = errors.New("mqtt: invalid topic")
	ErrInvalidQoS      = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)

package platform

import "errors"

var (
	// ErrUnknownCategory is returned for categories the engine does not handle.
	ErrUnknownCategory = errors.New("platform: unknown event category")

	// ErrMalformedPayload is returned when an event payload cannot be decoded.
	ErrMalformedPayload = errors.New("platform: malformed event payload")
)

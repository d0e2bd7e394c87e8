package subscription

import "errors"

// Domain errors for trigger conditions.
var (
	// ErrInvalidCondition is returned when a condition fails validation.
	// Nothing is persisted.
	ErrInvalidCondition = errors.New("subscription: invalid condition")

	// ErrSubscriptionFailed is returned when the event source rejects a
	// registration. The condition itself stays persisted.
	ErrSubscriptionFailed = errors.New("subscription: platform registration failed")

	// ErrConditionNotFound is returned when a condition ID does not exist.
	ErrConditionNotFound = errors.New("subscription: condition not found")

	// ErrSessionNotFound is returned when a condition names an unknown target.
	ErrSessionNotFound = errors.New("subscription: session not found")

	// ErrFieldMissing is returned by the field accessors for an absent key.
	ErrFieldMissing = errors.New("subscription: field missing")

	// ErrFieldType is returned by the field accessors for a value that does
	// not parse as the requested type.
	ErrFieldType = errors.New("subscription: field has wrong type")
)

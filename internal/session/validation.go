package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultHost and DefaultPort match a stock obs-websocket install.
	DefaultHost = "localhost"
	DefaultPort = 4455

	maxNameLength = 100
	maxHostLength = 253
)

// GenerateID creates a new UUID for a target.
func GenerateID() string {
	return uuid.New().String()
}

// applyDefaults fills in host and port when omitted.
func applyDefaults(t *Target) {
	t.Name = strings.TrimSpace(t.Name)
	t.Host = strings.TrimSpace(t.Host)
	if t.Host == "" {
		t.Host = DefaultHost
	}
	if t.Port == 0 {
		t.Port = DefaultPort
	}
}

// ValidateTarget checks a target after defaults have been applied.
func ValidateTarget(t *Target) error {
	if t == nil {
		return ErrInvalidTarget
	}
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTarget)
	}
	if len(t.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidTarget, maxNameLength)
	}
	if len(t.Host) > maxHostLength || strings.ContainsAny(t.Host, " /") {
		return fmt.Errorf("%w: invalid host %q", ErrInvalidTarget, t.Host)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidTarget)
	}
	return nil
}

package subscription

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/flashcue-core/internal/platform"
)

// Field keys understood by the matcher.
const (
	FieldQuantityThreshold = "quantity_threshold"
	FieldAllowAnonymous    = "allow_anonymous"
	FieldCommandText       = "command_text"
	FieldDurationMS        = "duration_ms"
)

const (
	minDurationMS = 1
	maxDurationMS = 60000

	maxCommandLength = 500
	maxNameLength    = 200
)

// Int returns an integer field. JSON numbers must be integral; strings are
// parsed as base-10 after trimming.
func (c *Condition) Int(key string) (int, error) {
	v, ok := c.Fields[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrFieldMissing, key)
	}
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrFieldType, key, v)
	}
	return n, nil
}

// Bool returns a boolean field. Strings true/false/1/0/on/off/yes/no are
// accepted in any case.
func (c *Condition) Bool(key string) (bool, error) {
	v, ok := c.Fields[key]
	if !ok || v == nil {
		return false, fmt.Errorf("%w: %s", ErrFieldMissing, key)
	}
	b, ok := toBool(v)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %v", ErrFieldType, key, v)
	}
	return b, nil
}

// String returns a string field.
func (c *Condition) String(key string) (string, error) {
	v, ok := c.Fields[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrFieldMissing, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrFieldType, key, v)
	}
	return s, nil
}

// Duration returns the per-condition flash duration override.
//
// Returns:
//   - time.Duration: the override, zero when absent
//   - bool: true if duration_ms is set
//   - error: ErrFieldType if it is set but not an in-range integer
func (c *Condition) Duration() (time.Duration, bool, error) {
	if _, ok := c.Fields[FieldDurationMS]; !ok {
		return 0, false, nil
	}
	ms, err := c.Int(FieldDurationMS)
	if err != nil {
		return 0, false, err
	}
	if ms < minDurationMS || ms > maxDurationMS {
		return 0, false, fmt.Errorf("%w: %s must be between %d and %d", ErrFieldType, FieldDurationMS, minDurationMS, maxDurationMS)
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

// ValidateNewCondition checks the target, category and the category's
// required fields. Errors wrap ErrInvalidCondition.
func ValidateNewCondition(nc *NewCondition) error {
	if nc == nil {
		return ErrInvalidCondition
	}
	if strings.TrimSpace(nc.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidCondition)
	}
	if !nc.Category.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidCondition, platform.ErrUnknownCategory, nc.Category)
	}
	if err := validateName("scene", nc.Scene); err != nil {
		return err
	}
	if err := validateName("element", nc.Element); err != nil {
		return err
	}

	probe := &Condition{Category: nc.Category, Fields: nc.Fields}
	if err := ValidateFields(probe); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	return nil
}

// ValidateFields checks that every field required by the condition's
// category is present and well-typed. The matcher uses it to skip
// ineligible conditions.
func ValidateFields(c *Condition) error {
	switch c.Category {
	case platform.CategoryGiftSubscription:
		threshold, err := c.Int(FieldQuantityThreshold)
		if err != nil {
			return err
		}
		if threshold < 1 {
			return fmt.Errorf("%w: %s must be at least 1", ErrFieldType, FieldQuantityThreshold)
		}
		if _, err := c.Bool(FieldAllowAnonymous); err != nil {
			return err
		}
	case platform.CategoryChatMessage:
		cmd, err := c.String(FieldCommandText)
		if err != nil {
			return err
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrFieldType, FieldCommandText)
		}
		if len(cmd) > maxCommandLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrFieldType, FieldCommandText, maxCommandLength)
		}
	default:
		return platform.ErrUnknownCategory
	}

	_, _, err := c.Duration()
	return err
}

func validateName(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidCondition, field)
	}
	if len(value) > maxNameLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidCondition, field, maxNameLength)
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		switch b {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	case int:
		switch b {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "on", "yes":
			return true, true
		case "false", "0", "off", "no":
			return false, true
		}
	}
	return false, false
}

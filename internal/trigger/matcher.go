package trigger

import (
	"strings"
	"time"

	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/subscription"
)

const defaultFlashDuration = 4 * time.Second

// Matcher evaluates events against trigger conditions. It performs no I/O.
type Matcher struct {
	logger          Logger
	defaultDuration time.Duration
}

// NewMatcher creates a matcher. defaultDuration applies to conditions
// without a duration_ms override; non-positive selects 4s.
func NewMatcher(defaultDuration time.Duration) *Matcher {
	if defaultDuration <= 0 {
		defaultDuration = defaultFlashDuration
	}
	return &Matcher{logger: noopLogger{}, defaultDuration: defaultDuration}
}

// SetLogger sets the logger for the matcher.
func (m *Matcher) SetLogger(logger Logger) {
	m.logger = logger
}

// Match returns one ActionRequest per condition the event satisfies.
//
// Every condition of the event's category is evaluated in the order given;
// all matches fire. Conditions of another category are ignored, and those
// with a missing or unparseable field are skipped and logged.
//
// Parameters:
//   - ev: The inbound event
//   - conds: The session's conditions, in insertion order
//   - activeElements: Element names of the session's active scene; only
//     chat conditions consult it
//
// Returns:
//   - []flash.ActionRequest: Possibly empty, never an error
func (m *Matcher) Match(ev platform.Event, conds []subscription.Condition, activeElements []string) []flash.ActionRequest {
	if !ev.Category.Valid() {
		return nil
	}

	var reqs []flash.ActionRequest
	for i := range conds {
		c := &conds[i]
		if c.Category != ev.Category {
			continue
		}
		if err := subscription.ValidateFields(c); err != nil {
			m.logger.Warn("skipping ineligible condition", "condition_id", c.ID, "category", c.Category, "error", err)
			continue
		}

		element, ok := m.matches(ev, c, activeElements)
		if !ok {
			continue
		}

		reqs = append(reqs, flash.ActionRequest{
			SessionID:   c.SessionID,
			Scene:       c.Scene,
			Element:     element,
			Duration:    m.durationFor(c),
			ConditionID: c.ID,
		})
	}
	return reqs
}

// matches applies the category rule and returns the element to flash.
func (m *Matcher) matches(ev platform.Event, c *subscription.Condition, activeElements []string) (string, bool) {
	switch ev.Category {
	case platform.CategoryGiftSubscription:
		return c.Element, giftMatches(ev.Gift, c)
	case platform.CategoryChatMessage:
		if !commandMatches(ev.Chat, c) {
			return "", false
		}
		name, ok := resolveElement(c.Element, activeElements)
		if !ok {
			m.logger.Debug("chat command matched but element not in active scene",
				"condition_id", c.ID,
				"element", c.Element,
			)
		}
		return name, ok
	default:
		return "", false
	}
}

// giftMatches: (allow_anonymous OR NOT is_anonymous) AND total >= threshold.
func giftMatches(gift *platform.GiftSubscription, c *subscription.Condition) bool {
	if gift == nil {
		return false
	}
	threshold, err := c.Int(subscription.FieldQuantityThreshold)
	if err != nil {
		return false
	}
	allowAnon, err := c.Bool(subscription.FieldAllowAnonymous)
	if err != nil {
		return false
	}
	return (allowAnon || !gift.IsAnonymous) && gift.Total >= threshold
}

// commandMatches compares the message and command trimmed and case-folded.
func commandMatches(chat *platform.ChatMessage, c *subscription.Condition) bool {
	if chat == nil {
		return false
	}
	cmd, err := c.String(subscription.FieldCommandText)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(chat.MessageText), strings.TrimSpace(cmd))
}

// resolveElement finds name among elements case-insensitively and returns
// the listed spelling.
func resolveElement(name string, elements []string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, el := range elements {
		if strings.EqualFold(strings.TrimSpace(el), name) {
			return el, true
		}
	}
	return "", false
}

func (m *Matcher) durationFor(c *subscription.Condition) time.Duration {
	if d, ok, err := c.Duration(); err == nil && ok {
		return d
	}
	return m.defaultDuration
}

// needsElements reports whether any chat condition's command matches the
// message, i.e. whether element resolution is worth an element listing.
func needsElements(ev platform.Event, conds []subscription.Condition) bool {
	if ev.Category != platform.CategoryChatMessage {
		return false
	}
	for i := range conds {
		if conds[i].Category == platform.CategoryChatMessage && commandMatches(ev.Chat, &conds[i]) {
			return true
		}
	}
	return false
}

package platform

import (
	"strings"
	"time"
)

// Category identifies the kind of platform event.
type Category string

const (
	// CategoryGiftSubscription is a bundle of gifted subscriptions.
	CategoryGiftSubscription Category = "channel.subscription.gift"

	// CategoryChatMessage is a single chat message.
	CategoryChatMessage Category = "channel.chat.message"
)

var categoryLabels = map[Category]string{
	CategoryGiftSubscription: "GiftSubscription",
	CategoryChatMessage:      "ChatMessage",
}

// Categories returns every supported category in a stable order.
func Categories() []Category {
	return []Category{CategoryGiftSubscription, CategoryChatMessage}
}

// Valid reports whether c is a supported category.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the operator-facing name, e.g. "GiftSubscription".
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory accepts either the EventSub type name or the label,
// case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for c, label := range categoryLabels {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, label) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

// GiftSubscription is the payload of a gifted-subscription event.
type GiftSubscription struct {
	Total       int    `json:"total"`
	IsAnonymous bool   `json:"is_anonymous"`
	UserName    string `json:"user_name,omitempty"`
	Tier        string `json:"tier,omitempty"`
}

// ChatMessage is the payload of a chat message event.
type ChatMessage struct {
	MessageText     string `json:"message_text"`
	ChatterUserName string `json:"chatter_user_name,omitempty"`
}

// Event is one inbound platform notification. Exactly one of Gift and Chat
// is set, according to Category.
type Event struct {
	Category   Category          `json:"category"`
	Gift       *GiftSubscription `json:"gift,omitempty"`
	Chat       *ChatMessage      `json:"chat,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// NewGiftEvent builds a GiftSubscription event.
func NewGiftEvent(total int, anonymous bool) Event {
	return Event{
		Category:   CategoryGiftSubscription,
		Gift:       &GiftSubscription{Total: total, IsAnonymous: anonymous},
		ReceivedAt: time.Now().UTC(),
	}
}

// NewChatEvent builds a ChatMessage event.
func NewChatEvent(text, sender string) Event {
	return Event{
		Category:   CategoryChatMessage,
		Chat:       &ChatMessage{MessageText: text, ChatterUserName: sender},
		ReceivedAt: time.Now().UTC(),
	}
}

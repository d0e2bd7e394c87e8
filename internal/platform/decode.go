package platform

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decode parses a bridge payload for the given category.
//
// Returns:
//   - Event: the typed event, ReceivedAt set to now
//   - error: ErrUnknownCategory or ErrMalformedPayload
func Decode(category Category, payload []byte) (Event, error) {
	ev := Event{Category: category, ReceivedAt: time.Now().UTC()}

	switch category {
	case CategoryGiftSubscription:
		var raw struct {
			Total       *int   `json:"total"`
			IsAnonymous bool   `json:"is_anonymous"`
			UserName    string `json:"user_name"`
			Tier        string `json:"tier"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if raw.Total == nil {
			return Event{}, fmt.Errorf("%w: total is required", ErrMalformedPayload)
		}
		if *raw.Total < 0 {
			return Event{}, fmt.Errorf("%w: total cannot be negative", ErrMalformedPayload)
		}
		ev.Gift = &GiftSubscription{
			Total:       *raw.Total,
			IsAnonymous: raw.IsAnonymous,
			UserName:    raw.UserName,
			Tier:        raw.Tier,
		}

	case CategoryChatMessage:
		var raw struct {
			MessageText     *string `json:"message_text"`
			ChatterUserName string  `json:"chatter_user_name"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if raw.MessageText == nil {
			return Event{}, fmt.Errorf("%w: message_text is required", ErrMalformedPayload)
		}
		ev.Chat = &ChatMessage{
			MessageText:     *raw.MessageText,
			ChatterUserName: raw.ChatterUserName,
		}

	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	return ev, nil
}

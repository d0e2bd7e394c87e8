package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flashcue-core/internal/platform"
)

// Condition is a persisted trigger rule owned by exactly one session.
type Condition struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq"`
	SessionID string            `json:"session_id"`
	Category  platform.Category `json:"category"`
	Scene     string            `json:"scene"`
	Element   string            `json:"element"`
	Fields    map[string]any    `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
}

// DeepCopy returns an independent copy; Fields is copied recursively.
func (c *Condition) DeepCopy() *Condition {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Fields = deepCopyMap(c.Fields)
	return &cpy
}

// NewCondition is the input to Manager.Subscribe.
type NewCondition struct {
	SessionID string            `json:"session_id"`
	Category  platform.Category `json:"category"`
	Scene     string            `json:"scene"`
	Element   string            `json:"element"`
	Fields    map[string]any    `json:"fields"`
}

// EventSource registers push delivery of one platform event category.
// The returned cancel func stops delivery; it must be safe to call once.
type EventSource interface {
	Subscribe(ctx context.Context, category platform.Category, targetID string, callback func(platform.Event)) (cancel func(), err error)
}

// EventHandler receives every delivered event together with the session it
// was armed for. HandleEvent is called on the source's delivery goroutine
// and must not block on other deliveries.
type EventHandler interface {
	HandleEvent(ctx context.Context, sessionID string, ev platform.Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, sessionID string, ev platform.Event)

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, sessionID string, ev platform.Event) {
	f(ctx, sessionID, ev)
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// GenerateID creates a new UUID for a condition.
func GenerateID() string {
	return uuid.New().String()
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

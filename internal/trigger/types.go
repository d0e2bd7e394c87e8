package trigger

import (
	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/session"
	"github.com/nerrad567/flashcue-core/internal/subscription"
)

// Sessions resolves a live session. *session.Registry satisfies it.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Conditions serves cached conditions. *subscription.Manager satisfies it.
type Conditions interface {
	ConditionsFor(sessionID string, category platform.Category) []subscription.Condition
}

// Submitter queues flashes. *flash.Executor satisfies it.
type Submitter interface {
	Submit(req flash.ActionRequest) error
}

// Logger defines the logging interface used by the Matcher and Dispatcher.
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

package session

import (
	"context"
	"time"
)

// Target is the persisted configuration of one scene-control endpoint.
type Target struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Redacted returns a copy without the credential, safe to log or serialise.
func (t Target) Redacted() Target {
	t.Password = ""
	return t
}

// State is the position of a target in the connection state machine.
type State string

const (
	StateConfigured State = "configured"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// Info is a point-in-time snapshot of a live session. It never carries the
// credential. An empty ActiveScene means no scene is selected.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	ActiveScene string    `json:"active_scene"`
	State       State     `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Handle identifies a transient scene element created by DuplicateElement.
type Handle int64

// SceneClient is the scene-control capability a Session holds.
// Implementations own the wire protocol and any transport retries.
type SceneClient interface {
	ListElements(ctx context.Context, scene string) ([]string, error)
	DuplicateElement(ctx context.Context, scene, name string) (Handle, error)
	SetElementEnabled(ctx context.Context, scene string, h Handle, enabled bool) error
	RemoveElement(ctx context.Context, scene string, h Handle) error
	Close() error
}

// Dialer opens a SceneClient for a target.
type Dialer interface {
	Dial(ctx context.Context, target Target) (SceneClient, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target Target) (SceneClient, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, target Target) (SceneClient, error) {
	return f(ctx, target)
}

// Logger defines the logging interface used by the Registry.
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

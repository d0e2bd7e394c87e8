package flash

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flashcue-core/internal/session"
)

// ActionRequest asks for one element to be flashed on one session.
type ActionRequest struct {
	SessionID string        `json:"session_id"`
	Scene     string        `json:"scene"`
	Element   string        `json:"element"`
	Duration  time.Duration `json:"duration"`

	// ConditionID names the trigger condition that produced the request;
	// empty for manual flashes.
	ConditionID string `json:"condition_id,omitempty"`
}

func (r ActionRequest) validate(maxFlashTime time.Duration) error {
	if strings.TrimSpace(r.SessionID) == "" || strings.TrimSpace(r.Scene) == "" || strings.TrimSpace(r.Element) == "" {
		return fmt.Errorf("%w: session, scene and element are required", ErrInvalidRequest)
	}
	if r.Duration <= 0 || r.Duration >= maxFlashTime {
		return fmt.Errorf("%w: duration %s outside (0, %s)", ErrInvalidRequest, r.Duration, maxFlashTime)
	}
	return nil
}

// Status is the outcome of one flash.
type Status string

const (
	// StatusCompleted means every step succeeded.
	StatusCompleted Status = "completed"

	// StatusPartial means the element was shown but hiding or removing the
	// duplicate failed.
	StatusPartial Status = "partial"

	// StatusFailed means the element was never shown.
	StatusFailed Status = "failed"

	// StatusCancelled means the sequence was abandoned.
	StatusCancelled Status = "cancelled"
)

// Step names a stage of the sequence.
type Step string

const (
	StepSession   Step = "session"
	StepDuplicate Step = "duplicate"
	StepEnable    Step = "enable"
	StepWait      Step = "wait"
	StepDisable   Step = "disable"
	StepRemove    Step = "remove"
)

// Execution records the outcome of one flash.
type Execution struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	ConditionID string    `json:"condition_id,omitempty"`
	Scene       string    `json:"scene"`
	Element     string    `json:"element"`
	DurationMS  int       `json:"duration_ms"`
	Status      Status    `json:"status"`
	FailedStep  Step      `json:"failed_step,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func newExecution(req ActionRequest) *Execution {
	return &Execution{
		ID:          uuid.New().String(),
		SessionID:   req.SessionID,
		ConditionID: req.ConditionID,
		Scene:       req.Scene,
		Element:     req.Element,
		DurationMS:  int(req.Duration.Milliseconds()),
		StartedAt:   time.Now().UTC(),
	}
}

// fail records the first failing step; later failures are appended to Error.
func (e *Execution) fail(step Step, err error) {
	if e.FailedStep == "" {
		e.FailedStep = step
		e.Error = err.Error()
		return
	}
	e.Error += "; " + string(step) + ": " + err.Error()
}

func (e *Execution) failIfUnset() {
	if e.Status == "" {
		e.Status = StatusFailed
	}
}

// Elapsed is the wall time of the sequence.
func (e *Execution) Elapsed() time.Duration {
	return e.CompletedAt.Sub(e.StartedAt)
}

// Sessions resolves a live session by ID. *session.Registry satisfies it.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Recorder persists executions.
type Recorder interface {
	Record(ctx context.Context, exec *Execution) error
}

// Telemetry receives every finished execution. Implementations must not block.
type Telemetry interface {
	WriteFlash(exec *Execution)
}

// Broadcaster pushes events to connected operators.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the Executor.
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

package flash

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultMaxFlashTime = 90 * time.Second
	defaultMaxQueue     = 32

	// cleanupTimeout bounds disable/remove once the flash context is done.
	cleanupTimeout = 5 * time.Second

	recordTimeout = 5 * time.Second
)

// Options tunes an Executor. Zero values select the defaults.
type Options struct {
	// MaxFlashTime is the hard limit for one sequence, wait included.
	MaxFlashTime time.Duration

	// MaxQueuePerElement caps pending flashes per (session, element).
	MaxQueuePerElement int
}

type laneKey struct {
	sessionID string
	element   string
}

type job struct {
	req  ActionRequest
	done chan<- *Execution // nil for fire-and-forget
}

// lane is the FIFO of pending flashes for one (session, element).
type lane struct {
	jobs []job
}

// Executor runs flash sequences off the dispatch path.
//
// Thread Safety: all methods are safe for concurrent use.
type Executor struct {
	sessions     Sessions
	maxFlashTime time.Duration
	maxQueue     int

	recorder  Recorder
	telemetry Telemetry
	hub       Broadcaster
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	lanes  map[laneKey]*lane
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor creates an executor that resolves sessions through sessions.
func NewExecutor(sessions Sessions, opts Options) *Executor {
	if opts.MaxFlashTime <= 0 {
		opts.MaxFlashTime = defaultMaxFlashTime
	}
	if opts.MaxQueuePerElement <= 0 {
		opts.MaxQueuePerElement = defaultMaxQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		sessions:     sessions,
		maxFlashTime: opts.MaxFlashTime,
		maxQueue:     opts.MaxQueuePerElement,
		logger:       noopLogger{},
		ctx:          ctx,
		cancel:       cancel,
		lanes:        make(map[laneKey]*lane),
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) { e.logger = logger }

// SetRecorder sets where executions are persisted (may be nil).
func (e *Executor) SetRecorder(r Recorder) { e.recorder = r }

// SetTelemetry sets the telemetry sink (may be nil).
func (e *Executor) SetTelemetry(t Telemetry) { e.telemetry = t }

// SetBroadcaster sets the operator event hub (may be nil).
func (e *Executor) SetBroadcaster(b Broadcaster) { e.hub = b }

// Submit queues a flash and returns immediately. The outcome is only
// observable through logs, the recorder, telemetry and the hub.
//
// Returns:
//   - error: ErrInvalidRequest, ErrQueueFull or ErrExecutorClosed
func (e *Executor) Submit(req ActionRequest) error {
	return e.enqueue(job{req: req})
}

// Run queues a flash on its lane and waits for the outcome. It is ordered
// with Submit calls for the same element.
//
// Returns:
//   - *Execution: The outcome, nil if ctx ended before the flash ran
//   - error: A Submit error, ctx.Err(), ErrActionFailed or ErrCancelled
func (e *Executor) Run(ctx context.Context, req ActionRequest) (*Execution, error) {
	done := make(chan *Execution, 1)
	if err := e.enqueue(job{req: req, done: done}); err != nil {
		return nil, err
	}
	select {
	case exec := <-done:
		return exec, outcomeError(exec)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels in-flight flashes, refuses new ones and waits for every lane
// worker to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Executor) enqueue(j job) error {
	if err := j.req.validate(e.maxFlashTime); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorClosed
	}

	key := laneKey{j.req.SessionID, j.req.Element}
	l, ok := e.lanes[key]
	if !ok {
		l = &lane{}
		e.lanes[key] = l
		e.wg.Add(1)
		go e.runLane(key, l)
	}
	if len(l.jobs) >= e.maxQueue {
		e.logger.Warn("flash dropped, lane full",
			"session_id", j.req.SessionID,
			"element", j.req.Element,
			"queued", len(l.jobs),
		)
		return fmt.Errorf("%w: %s/%s", ErrQueueFull, j.req.SessionID, j.req.Element)
	}
	l.jobs = append(l.jobs, j)
	return nil
}

// runLane drains one lane in order and removes it once empty.
func (e *Executor) runLane(key laneKey, l *lane) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		if len(l.jobs) == 0 {
			delete(e.lanes, key)
			e.mu.Unlock()
			return
		}
		j := l.jobs[0]
		l.jobs[0] = job{}
		l.jobs = l.jobs[1:]
		e.mu.Unlock()

		exec := e.execute(e.ctx, j.req)
		if j.done != nil {
			j.done <- exec
		}
	}
}

// execute runs the sequence and publishes the outcome. It never panics out.
func (e *Executor) execute(ctx context.Context, req ActionRequest) (exec *Execution) {
	exec = newExecution(req)
	defer func() {
		if r := recover(); r != nil {
			exec.Status = StatusFailed
			exec.fail(StepSession, fmt.Errorf("panic: %v", r))
			e.logger.Error("panic in flash sequence", "session_id", req.SessionID, "element", req.Element, "panic", r)
		}
		exec.CompletedAt = time.Now().UTC()
		e.publish(exec)
	}()

	e.runSequence(ctx, req, exec)
	return exec
}

// publish logs, records, meters and broadcasts a finished execution.
func (e *Executor) publish(exec *Execution) {
	args := []any{
		"execution_id", exec.ID,
		"session_id", exec.SessionID,
		"scene", exec.Scene,
		"element", exec.Element,
		"status", exec.Status,
		"elapsed_ms", exec.Elapsed().Milliseconds(),
	}
	switch exec.Status {
	case StatusCompleted:
		e.logger.Info("flash completed", args...)
	case StatusCancelled:
		e.logger.Info("flash cancelled", append(args, "step", exec.FailedStep)...)
	default:
		e.logger.Error("flash failed", append(args, "step", exec.FailedStep, "error", exec.Error)...)
	}

	if e.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := e.recorder.Record(ctx, exec); err != nil {
			e.logger.Error("failed to record flash execution", "execution_id", exec.ID, "error", err)
		}
		cancel()
	}
	if e.telemetry != nil {
		e.telemetry.WriteFlash(exec)
	}
	if e.hub != nil {
		e.hub.Broadcast("flash.completed", exec)
	}
}

func outcomeError(exec *Execution) error {
	switch exec.Status {
	case StatusCompleted:
		return nil
	case StatusCancelled:
		return fmt.Errorf("%w: %s", ErrCancelled, exec.FailedStep)
	default:
		return fmt.Errorf("%w: %s: %s", ErrActionFailed, exec.FailedStep, exec.Error)
	}
}

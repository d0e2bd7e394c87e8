package sidecar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// Defaults applied by New to zero-valued Config fields.
const (
	defaultRestartDelay    = 1 * time.Second
	defaultMaxRestartDelay = 1 * time.Minute
	defaultStableThreshold = 30 * time.Second
	defaultStopTimeout     = 5 * time.Second
)

// Config describes one supervised process.
type Config struct {
	// Name identifies the process in logs and stats.
	Name string

	// Command is the executable followed by its arguments.
	Command []string

	// Env is appended to the parent environment when non-empty.
	Env []string

	// WorkDir is the working directory. Empty inherits the parent's.
	WorkDir string

	// RestartOnFailure restarts the process whenever it exits on its own.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay. It doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last before the backoff and the
	// consecutive failure count reset.
	StableThreshold time.Duration

	// MaxRestarts caps consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// StopTimeout is how long to wait after SIGTERM before killing.
	StopTimeout time.Duration

	// OnExit is called each time the process exits on its own.
	OnExit func(err error)
}

// Logger defines the logging interface for the supervisor.
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

// Process supervises one child process.
//
// Thread Safety: All methods are safe for concurrent use.
type Process struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	status    Status
	pid       int
	startedAt time.Time
	restarts  int
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New validates cfg and returns a stopped Process.
//
// Returns:
//   - *Process: Supervisor ready to Start
//   - error: ErrInvalidConfig if the name or command is missing
func New(cfg Config) (*Process, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("%w: %s: command is required", ErrInvalidConfig, cfg.Name)
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(defaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Process{cfg: cfg, logger: noopLogger{}, status: StatusStopped}, nil
}

// SetLogger sets the logger. Call before Start.
func (p *Process) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Name returns the configured process name.
func (p *Process) Name() string {
	return p.cfg.Name
}

// Start launches the process and supervises it until Stop is called or ctx
// is cancelled. A failure to launch the first time is returned directly.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.status != StatusStopped && p.status != StatusFailed {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, p.cfg.Name)
	}
	if p.done != nil {
		select {
		case <-p.done:
		default:
			p.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, p.cfg.Name)
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.restarts = 0
	p.lastErr = nil
	done := p.done
	p.mu.Unlock()

	cmd, err := p.spawn(runCtx)
	if err != nil {
		cancel()
		p.fail(err)
		close(done)
		return err
	}

	go p.supervise(runCtx, cmd, done)
	return nil
}

// Stop terminates the process group and waits for supervision to end.
// Safe to call on a process that was never started.
func (p *Process) Stop() {
	p.mu.RLock()
	cancel, done := p.cancel, p.done
	p.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// spawn starts one instance of the command in its own process group.
// Cancelling ctx sends SIGTERM to the group; the leader is killed if it
// outlives StopTimeout.
func (p *Process) spawn(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, p.cfg.Command[0], p.cfg.Command[1:]...) //nolint:gosec // operator-configured command
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return signalGroup(cmd.Process, syscall.SIGTERM) }
	cmd.WaitDelay = p.cfg.StopTimeout
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), p.cfg.Env...)
	}
	cmd.Dir = p.cfg.WorkDir
	cmd.Stdout = newLineWriter(p.logger, p.cfg.Name, "stdout")
	cmd.Stderr = newLineWriter(p.logger, p.cfg.Name, "stderr")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", p.cfg.Name, err)
	}

	p.mu.Lock()
	p.status = StatusRunning
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	p.mu.Unlock()

	p.logger.Info("sidecar started", "name", p.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// supervise waits on cmd and restarts it per the backoff policy.
func (p *Process) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	delay := p.cfg.RestartDelay
	failures := 0
	for {
		started := time.Now()
		err := cmd.Wait()
		if ctx.Err() != nil {
			p.mu.Lock()
			p.status = StatusStopped
			p.pid = 0
			p.mu.Unlock()
			p.logger.Info("sidecar stopped", "name", p.cfg.Name)
			return
		}
		if err == nil {
			err = ErrExited
		}
		if time.Since(started) >= p.cfg.StableThreshold {
			delay, failures = p.cfg.RestartDelay, 0
		}
		failures++
		p.logger.Warn("sidecar exited", "name", p.cfg.Name, "error", err)
		p.fail(err)
		if p.cfg.OnExit != nil {
			p.cfg.OnExit(err)
		}

		for {
			if !p.cfg.RestartOnFailure {
				return
			}
			if p.cfg.MaxRestarts > 0 && failures > p.cfg.MaxRestarts {
				p.logger.Error("sidecar restart limit reached", "name", p.cfg.Name, "failures", failures-1)
				return
			}

			p.setStatus(StatusBackoff)
			p.logger.Info("restarting sidecar", "name", p.cfg.Name, "attempt", failures, "delay", delay)
			if !sleepCtx(ctx, delay) {
				p.setStatus(StatusStopped)
				return
			}
			delay = min(delay*2, p.cfg.MaxRestartDelay)

			p.mu.Lock()
			p.restarts++
			p.mu.Unlock()

			next, err := p.spawn(ctx)
			if err == nil {
				cmd = next
				break
			}
			failures++
			p.logger.Error("sidecar restart failed", "name", p.cfg.Name, "error", err)
			p.fail(err)
		}
	}
}

func (p *Process) fail(err error) {
	p.mu.Lock()
	p.status = StatusFailed
	p.pid = 0
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Process) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Status returns the current status.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Stats is a point-in-time view of a supervised process.
type Stats struct {
	Name          string `json:"name"`
	Status        Status `json:"status"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Restarts      int    `json:"restarts"`
	LastError     string `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (p *Process) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{
		Name:     p.cfg.Name,
		Status:   p.status,
		PID:      p.pid,
		Restarts: p.restarts,
	}
	if p.status == StatusRunning {
		st.UptimeSeconds = int64(time.Since(p.startedAt).Seconds())
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

// signalGroup signals the process group led by proc.
func signalGroup(proc *os.Process, sig syscall.Signal) error {
	if proc == nil {
		return os.ErrProcessDone
	}
	err := syscall.Kill(-proc.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// sleepCtx waits for d. It reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

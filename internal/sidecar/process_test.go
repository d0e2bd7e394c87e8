package sidecar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordLogger keeps every "line" attribute it is given.
type recordLogger struct {
	mu    sync.Mutex
	lines []string
	msgs  []string
}

func (l *recordLogger) record(msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			l.lines = append(l.lines, fmt.Sprint(args[i+1]))
		}
	}
}

func (l *recordLogger) Debug(msg string, args ...any) { l.record(msg, args) }
func (l *recordLogger) Info(msg string, args ...any)  { l.record(msg, args) }
func (l *recordLogger) Warn(msg string, args ...any)  { l.record(msg, args) }
func (l *recordLogger) Error(msg string, args ...any) { l.record(msg, args) }

func (l *recordLogger) hasLine(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	p.mu.RLock()
	done := p.done
	p.mu.RUnlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervision did not end")
	}
}

// ─── Construction ───────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no name", Config{Command: []string{"/bin/true"}}},
		{"no command", Config{Name: "x"}},
		{"empty binary", Config{Name: "x", Command: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{Name: "obs-bridge", Command: []string{"/bin/true"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.cfg.RestartDelay != defaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", p.cfg.RestartDelay, defaultRestartDelay)
	}
	if p.cfg.MaxRestartDelay != defaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v, want %v", p.cfg.MaxRestartDelay, defaultMaxRestartDelay)
	}
	if p.cfg.StableThreshold != defaultStableThreshold {
		t.Errorf("StableThreshold = %v, want %v", p.cfg.StableThreshold, defaultStableThreshold)
	}
	if p.cfg.StopTimeout != defaultStopTimeout {
		t.Errorf("StopTimeout = %v, want %v", p.cfg.StopTimeout, defaultStopTimeout)
	}
	if p.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", p.Status(), StatusStopped)
	}
	st := p.Stats()
	if st.Name != "obs-bridge" || st.PID != 0 || st.Restarts != 0 || st.LastError != "" {
		t.Errorf("initial Stats() = %+v", st)
	}
}

func TestStop_NeverStarted(t *testing.T) {
	p, _ := New(Config{Name: "idle", Command: []string{"/bin/true"}})
	p.Stop()
	if p.Status() != StatusStopped {
		t.Errorf("Status() = %q, want stopped", p.Status())
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

func TestProcess_RunsCapturesOutputAndStops(t *testing.T) {
	log := &recordLogger{}
	p, err := New(Config{
		Name:        "sleeper",
		Command:     []string{"/bin/sh", "-c", "echo hello; echo oops >&2; exec sleep 30"},
		StopTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.SetLogger(log)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(p.Stop)

	waitFor(t, "stdout line", func() bool { return log.hasLine("hello") })
	waitFor(t, "stderr line", func() bool { return log.hasLine("oops") })

	st := p.Stats()
	if st.Status != StatusRunning || st.PID == 0 {
		t.Errorf("Stats() = %+v, want running with pid", st)
	}

	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
	if p.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %q, want stopped", p.Status())
	}
	if p.Stats().PID != 0 {
		t.Error("PID should be cleared after Stop")
	}
}

func TestProcess_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, _ := New(Config{Name: "ctx", Command: []string{"/bin/sleep", "30"}, StopTimeout: time.Second})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	waitDone(t, p)
	if p.Status() != StatusStopped {
		t.Errorf("Status() = %q, want stopped", p.Status())
	}
}

func TestProcess_StartFailure(t *testing.T) {
	p, _ := New(Config{Name: "missing", Command: []string{"/nonexistent/flashcue-bridge"}})
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail for a missing binary")
	}
	if p.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", p.Status())
	}
	if p.Stats().LastError == "" {
		t.Error("LastError should be set")
	}
	p.Stop()
}

// ─── Restart policy ─────────────────────────────────────────────────

func TestProcess_RestartsUntilLimit(t *testing.T) {
	var exits atomic.Int32
	p, _ := New(Config{
		Name:             "crasher",
		Command:          []string{"/bin/sh", "-c", "exit 3"},
		RestartOnFailure: true,
		RestartDelay:     5 * time.Millisecond,
		MaxRestartDelay:  20 * time.Millisecond,
		MaxRestarts:      2,
		OnExit:           func(error) { exits.Add(1) },
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p)

	if got := exits.Load(); got != 3 {
		t.Errorf("exits = %d, want 3", got)
	}
	st := p.Stats()
	if st.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", st.Restarts)
	}
	if st.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", st.Status)
	}
	if !strings.Contains(st.LastError, "exit status 3") {
		t.Errorf("LastError = %q, want exit status 3", st.LastError)
	}
}

func TestProcess_CleanExitWithoutRestart(t *testing.T) {
	p, _ := New(Config{Name: "oneshot", Command: []string{"/bin/true"}})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p)

	if p.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", p.Status())
	}
	if p.Stats().LastError != ErrExited.Error() {
		t.Errorf("LastError = %q, want %q", p.Stats().LastError, ErrExited.Error())
	}

	// A finished process can be started again.
	if err := p.Start(context.Background()); err != nil {
		t.Errorf("restart after exit: %v", err)
	}
	waitDone(t, p)
}

// ─── Output ─────────────────────────────────────────────────────────

func TestLineWriter_SplitsAndJoins(t *testing.T) {
	log := &recordLogger{}
	w := newLineWriter(log, "x", "stdout")

	for _, chunk := range []string{"first\nsec", "ond\r\n\n", "tail"} {
		if n, err := w.Write([]byte(chunk)); err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}

	want := []string{"first", "second"}
	if len(log.lines) != len(want) {
		t.Fatalf("lines = %q, want %q", log.lines, want)
	}
	for i := range want {
		if log.lines[i] != want[i] {
			t.Errorf("line[%d] = %q, want %q", i, log.lines[i], want[i])
		}
	}
}

func TestLineWriter_FlushesLongLine(t *testing.T) {
	log := &recordLogger{}
	w := newLineWriter(log, "x", "stdout")
	w.Write([]byte(strings.Repeat("a", maxLineLen))) //nolint:errcheck // never fails

	if len(log.lines) != 1 || len(log.lines[0]) != maxLineLen {
		t.Errorf("long line not flushed: %d lines", len(log.lines))
	}
}

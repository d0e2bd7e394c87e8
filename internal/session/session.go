package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session is one live link to a scene-control target.
//
// It holds the SceneClient rather than being one, serialises calls through
// it, and carries a context that is cancelled when the session disconnects.
type Session struct {
	target      Target
	client      SceneClient
	connectedAt time.Time

	// cmd is a one-slot semaphore making client calls single-inflight.
	cmd chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	activeScene string
}

func newSession(target Target, client SceneClient) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		target:      target.Redacted(),
		client:      client,
		connectedAt: time.Now().UTC(),
		cmd:         make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the target ID.
func (s *Session) ID() string { return s.target.ID }

// Context is cancelled when the session disconnects.
func (s *Session) Context() context.Context { return s.ctx }

// ActiveScene returns the operator-selected scene, or "" for none.
func (s *Session) ActiveScene() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeScene
}

func (s *Session) setActiveScene(scene string) {
	s.mu.Lock()
	s.activeScene = scene
	s.mu.Unlock()
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	return Info{
		ID:          s.target.ID,
		Name:        s.target.Name,
		Host:        s.target.Host,
		Port:        s.target.Port,
		ActiveScene: s.ActiveScene(),
		State:       StateConnected,
		ConnectedAt: s.connectedAt,
	}
}

// acquire takes the command slot, giving up if ctx or the session ends first.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.cmd <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("%w: %s", ErrNotConnected, s.target.ID)
	}
}

func (s *Session) release() { <-s.cmd }

// ListElements lists the element names of scene.
func (s *Session) ListElements(ctx context.Context, scene string) ([]string, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.client.ListElements(ctx, scene)
}

// DuplicateElement creates a transient copy of name in scene.
func (s *Session) DuplicateElement(ctx context.Context, scene, name string) (Handle, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()
	return s.client.DuplicateElement(ctx, scene, name)
}

// SetElementEnabled shows or hides a transient element.
func (s *Session) SetElementEnabled(ctx context.Context, scene string, h Handle, enabled bool) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.client.SetElementEnabled(ctx, scene, h, enabled)
}

// RemoveElement deletes a transient element.
func (s *Session) RemoveElement(ctx context.Context, scene string, h Handle) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return s.client.RemoveElement(ctx, scene, h)
}

// close cancels the session context and closes the client.
func (s *Session) close() error {
	s.cancel()
	return s.client.Close()
}

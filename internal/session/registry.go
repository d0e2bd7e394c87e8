package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultConnectTimeout = 5 * time.Second

	// connectAllParallelism bounds concurrent dials in ConnectAll.
	connectAllParallelism = 4
)

// Registry owns the set of live sessions and the connect/disconnect
// lifecycle of every configured target.
//
// All public methods are thread-safe. The registry lock is never held while
// dialing or closing a client.
type Registry struct {
	repo   Repository
	dialer Dialer

	mu         sync.RWMutex
	live       map[string]*Session
	connecting map[string]struct{}
	closed     bool

	connectTimeout time.Duration

	hookMu       sync.RWMutex
	onConnect    func(id string)
	onDisconnect func(id string)

	logger Logger
}

// NewRegistry creates a registry over the target repository and dialer.
func NewRegistry(repo Repository, dialer Dialer) *Registry {
	return &Registry{
		repo:           repo,
		dialer:         dialer,
		live:           make(map[string]*Session),
		connecting:     make(map[string]struct{}),
		connectTimeout: defaultConnectTimeout,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetConnectTimeout bounds each dial. Non-positive values are ignored.
func (r *Registry) SetConnectTimeout(d time.Duration) {
	if d > 0 {
		r.connectTimeout = d
	}
}

// SetOnConnect registers a hook run after a session becomes live.
func (r *Registry) SetOnConnect(fn func(id string)) {
	r.hookMu.Lock()
	r.onConnect = fn
	r.hookMu.Unlock()
}

// SetOnDisconnect registers a hook run after a session is removed.
func (r *Registry) SetOnDisconnect(fn func(id string)) {
	r.hookMu.Lock()
	r.onDisconnect = fn
	r.hookMu.Unlock()
}

// Connect loads the persisted target, dials it and registers the session.
//
// Parameters:
//   - ctx: Cancels the dial; the connect timeout also applies
//   - id: Target ID
//
// Returns:
//   - *Session: The new live session
//   - error: ErrAlreadyConnected, ErrNotFound or ErrConnectionFailed
func (r *Registry) Connect(ctx context.Context, id string) (*Session, error) {
	if err := r.reserve(id); err != nil {
		return nil, err
	}

	target, err := r.repo.GetByID(ctx, id)
	if err != nil {
		r.unreserve(id)
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	client, err := r.dialer.Dial(dialCtx, *target)
	cancel()
	if err != nil {
		r.unreserve(id)
		r.logger.Warn("scene target connect failed", "target_id", id, "host", target.Host, "port", target.Port, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, id, err)
	}

	sess := newSession(*target, client)

	r.mu.Lock()
	delete(r.connecting, id)
	if r.closed {
		r.mu.Unlock()
		sess.close() //nolint:errcheck // registry shut down mid-dial
		return nil, fmt.Errorf("%w: registry closed", ErrConnectionFailed)
	}
	r.live[id] = sess
	r.mu.Unlock()

	r.logger.Info("scene target connected", "target_id", id, "host", target.Host, "port", target.Port)

	r.hookMu.RLock()
	hook := r.onConnect
	r.hookMu.RUnlock()
	if hook != nil {
		hook(id)
	}
	return sess, nil
}

// reserve moves id into Connecting, failing if it is already live or
// connecting.
func (r *Registry) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("%w: registry closed", ErrConnectionFailed)
	}
	if _, ok := r.live[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, id)
	}
	if _, ok := r.connecting[id]; ok {
		return fmt.Errorf("%w: %s is connecting", ErrAlreadyConnected, id)
	}
	r.connecting[id] = struct{}{}
	return nil
}

func (r *Registry) unreserve(id string) {
	r.mu.Lock()
	delete(r.connecting, id)
	r.mu.Unlock()
}

// Disconnect closes the session and removes it from the live set.
// In-flight work bound to the session context is cancelled.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	sess, ok := r.live[id]
	if ok {
		delete(r.live, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, id)
	}

	if err := sess.close(); err != nil {
		r.logger.Warn("closing scene client", "target_id", id, "error", err)
	}
	r.logger.Info("scene target disconnected", "target_id", id)

	r.hookMu.RLock()
	hook := r.onDisconnect
	r.hookMu.RUnlock()
	if hook != nil {
		hook(id)
	}
	return nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return sess, nil
}

// List returns a snapshot of all live sessions sorted by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.live))
	for _, s := range r.live {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Status reports where id sits in the connection state machine.
func (r *Registry) Status(ctx context.Context, id string) (State, error) {
	r.mu.RLock()
	_, live := r.live[id]
	_, connecting := r.connecting[id]
	r.mu.RUnlock()

	switch {
	case live:
		return StateConnected, nil
	case connecting:
		return StateConnecting, nil
	}

	if _, err := r.repo.GetByID(ctx, id); err != nil {
		return "", err
	}
	return StateConfigured, nil
}

// SetActiveScene selects the scene chat triggers resolve elements against.
// An empty scene clears the selection.
func (r *Registry) SetActiveScene(id, scene string) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	sess.setActiveScene(scene)
	r.logger.Info("active scene changed", "target_id", id, "scene", scene)
	return nil
}

// ActiveElements lists the elements of the session's active scene. With no
// active scene the list is empty.
func (r *Registry) ActiveElements(ctx context.Context, id string) ([]string, error) {
	sess, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	scene := sess.ActiveScene()
	if scene == "" {
		return []string{}, nil
	}
	return sess.ListElements(ctx, scene)
}

// ConnectAll connects every persisted target that is not already live.
// Individual failures are logged and skipped.
//
// Returns:
//   - int: Number of sessions connected by this call
//   - error: Only if the target list cannot be loaded
func (r *Registry) ConnectAll(ctx context.Context) (int, error) {
	targets, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing targets: %w", err)
	}

	var (
		mu        sync.Mutex
		connected int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(connectAllParallelism)
	for _, t := range targets {
		id := t.ID
		g.Go(func() error {
			_, err := r.Connect(gctx, id)
			switch {
			case err == nil:
				mu.Lock()
				connected++
				mu.Unlock()
			case errors.Is(err, ErrAlreadyConnected):
			default:
				r.logger.Warn("auto-connect skipped target", "target_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return connected, nil
}

// Close disconnects every live session and refuses new connects.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Disconnect(id); err != nil && !errors.Is(err, ErrNotConnected) {
			r.logger.Warn("disconnect on close", "target_id", id, "error", err)
		}
	}
}

// ─── Target CRUD ────────────────────────────────────────────────────────────

// GetTarget returns the persisted target. The credential is included.
func (r *Registry) GetTarget(ctx context.Context, id string) (*Target, error) {
	return r.repo.GetByID(ctx, id)
}

// ListTargets returns every persisted target.
func (r *Registry) ListTargets(ctx context.Context) ([]Target, error) {
	return r.repo.List(ctx)
}

// CreateTarget applies defaults, validates and persists a new target.
func (r *Registry) CreateTarget(ctx context.Context, t *Target) error {
	if t == nil {
		return ErrInvalidTarget
	}
	if t.ID == "" {
		t.ID = GenerateID()
	}
	applyDefaults(t)
	if err := ValidateTarget(t); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, t); err != nil {
		return err
	}
	r.logger.Info("target created", "target_id", t.ID, "name", t.Name)
	return nil
}

// UpdateTarget persists changes to an existing target. A live session keeps
// its current link; the change applies on the next connect.
func (r *Registry) UpdateTarget(ctx context.Context, t *Target) error {
	if t == nil || t.ID == "" {
		return ErrInvalidTarget
	}
	applyDefaults(t)
	if err := ValidateTarget(t); err != nil {
		return err
	}
	return r.repo.Update(ctx, t)
}

// DeleteTarget disconnects a live session for id, then removes the target.
func (r *Registry) DeleteTarget(ctx context.Context, id string) error {
	if err := r.Disconnect(id); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("target deleted", "target_id", id)
	return nil
}

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ─── Test doubles ───────────────────────────────────────────────────────────

type memRepo struct {
	mu      sync.Mutex
	targets map[string]Target
}

func newMemRepo(targets ...Target) *memRepo {
	r := &memRepo{targets: make(map[string]Target)}
	for _, t := range targets {
		r.targets[t.ID] = t
	}
	return r
}

func (r *memRepo) GetByID(_ context.Context, id string) (*Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *memRepo) List(_ context.Context) ([]Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) Create(_ context.Context, t *Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[t.ID]; ok {
		return ErrTargetExists
	}
	r.targets[t.ID] = *t
	return nil
}

func (r *memRepo) Update(_ context.Context, t *Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[t.ID]; !ok {
		return ErrNotFound
	}
	r.targets[t.ID] = *t
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[id]; !ok {
		return ErrNotFound
	}
	delete(r.targets, id)
	return nil
}

type fakeClient struct {
	mu       sync.Mutex
	elements map[string][]string
	closed   bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (c *fakeClient) enter() func() {
	n := c.inflight.Add(1)
	for {
		m := c.maxInflight.Load()
		if n <= m || c.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return func() { c.inflight.Add(-1) }
}

func (c *fakeClient) ListElements(_ context.Context, scene string) ([]string, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.elements[scene]...), nil
}

func (c *fakeClient) DuplicateElement(context.Context, string, string) (Handle, error) {
	defer c.enter()()
	return 1, nil
}

func (c *fakeClient) SetElementEnabled(context.Context, string, Handle, bool) error {
	defer c.enter()()
	return nil
}

func (c *fakeClient) RemoveElement(context.Context, string, Handle) error {
	defer c.enter()()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// staticDialer hands out one fakeClient per dial and counts dials.
type staticDialer struct {
	dials   atomic.Int32
	fail    map[string]error
	gate    chan struct{} // when non-nil, Dial blocks until closed
	mu      sync.Mutex
	clients map[string]*fakeClient
}

func newStaticDialer() *staticDialer {
	return &staticDialer{fail: map[string]error{}, clients: map[string]*fakeClient{}}
}

func (d *staticDialer) Dial(ctx context.Context, t Target) (SceneClient, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.fail[t.ID]; err != nil {
		return nil, err
	}
	c := &fakeClient{elements: map[string][]string{"Main": {"Intro", "Outro"}}}
	d.mu.Lock()
	d.clients[t.ID] = c
	d.mu.Unlock()
	return c, nil
}

func (d *staticDialer) client(id string) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[id]
}

func testTarget(id string) Target {
	return Target{ID: id, Name: "Studio " + id, Host: DefaultHost, Port: DefaultPort, Password: "secret"}
}

// ─── Connect / Disconnect ───────────────────────────────────────────────────

func TestRegistry_ConnectTwiceNeverDuplicates(t *testing.T) {
	dialer := newStaticDialer()
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)
	ctx := context.Background()

	if _, err := reg.Connect(ctx, "a"); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	_, err := reg.Connect(ctx, "a")
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
	if n := len(reg.List()); n != 1 {
		t.Errorf("live sessions = %d, want 1", n)
	}
	if n := dialer.dials.Load(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestRegistry_ConcurrentConnect(t *testing.T) {
	dialer := newStaticDialer()
	dialer.gate = make(chan struct{})
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)

	const callers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		already   atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Connect(context.Background(), "a")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrAlreadyConnected):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	// Let the losers observe the pending connect before the dial completes.
	time.Sleep(20 * time.Millisecond)
	close(dialer.gate)
	wg.Wait()

	if successes.Load() != 1 || already.Load() != callers-1 {
		t.Errorf("successes=%d already=%d, want 1/%d", successes.Load(), already.Load(), callers-1)
	}
	if n := len(reg.List()); n != 1 {
		t.Errorf("live sessions = %d, want 1", n)
	}
}

func TestRegistry_ConnectNotFound(t *testing.T) {
	reg := NewRegistry(newMemRepo(), newStaticDialer())

	_, err := reg.Connect(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Connect() error = %v, want ErrNotFound", err)
	}
	// Reservation released: a later attempt is not AlreadyConnected.
	if _, err := reg.Connect(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("retry error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ConnectFailureReturnsToConfigured(t *testing.T) {
	dialer := newStaticDialer()
	dialer.fail["a"] = errors.New("connection refused")
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)
	ctx := context.Background()

	_, err := reg.Connect(ctx, "a")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}

	state, err := reg.Status(ctx, "a")
	if err != nil || state != StateConfigured {
		t.Errorf("Status() = %q, %v; want configured", state, err)
	}
	if _, err := reg.Get("a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Get() error = %v, want ErrNotConnected", err)
	}

	// Not auto-retried, but a manual retry works once the target is back.
	delete(dialer.fail, "a")
	if _, err := reg.Connect(ctx, "a"); err != nil {
		t.Fatalf("retry Connect() error = %v", err)
	}
}

func TestRegistry_ConnectTimeout(t *testing.T) {
	dialer := newStaticDialer()
	dialer.gate = make(chan struct{}) // never opened
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)
	reg.SetConnectTimeout(20 * time.Millisecond)

	_, err := reg.Connect(context.Background(), "a")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want it to wrap DeadlineExceeded", err)
	}
}

func TestRegistry_StatusConnecting(t *testing.T) {
	dialer := newStaticDialer()
	dialer.gate = make(chan struct{})
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = reg.Connect(context.Background(), "a")
	}()

	deadline := time.After(time.Second)
	for {
		state, _ := reg.Status(context.Background(), "a")
		if state == StateConnecting {
			break
		}
		select {
		case <-deadline:
			t.Fatal("never observed connecting state")
		case <-time.After(time.Millisecond):
		}
	}

	close(dialer.gate)
	<-done

	if state, _ := reg.Status(context.Background(), "a"); state != StateConnected {
		t.Errorf("Status() = %q, want connected", state)
	}
}

func TestRegistry_DisconnectUnregistered(t *testing.T) {
	reg := NewRegistry(newMemRepo(testTarget("a")), newStaticDialer())

	for _, id := range []string{"a", "never-configured"} {
		if err := reg.Disconnect(id); !errors.Is(err, ErrNotConnected) {
			t.Errorf("Disconnect(%q) error = %v, want ErrNotConnected", id, err)
		}
	}
}

func TestRegistry_DisconnectCancelsAndCloses(t *testing.T) {
	dialer := newStaticDialer()
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)

	var connected, disconnected []string
	reg.SetOnConnect(func(id string) { connected = append(connected, id) })
	reg.SetOnDisconnect(func(id string) { disconnected = append(disconnected, id) })

	sess, err := reg.Connect(context.Background(), "a")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := reg.Disconnect("a"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	select {
	case <-sess.Context().Done():
	default:
		t.Error("session context not cancelled")
	}
	if !dialer.client("a").isClosed() {
		t.Error("client not closed")
	}
	if len(connected) != 1 || len(disconnected) != 1 {
		t.Errorf("hooks connect=%v disconnect=%v", connected, disconnected)
	}
	if err := reg.Disconnect("a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("second Disconnect() error = %v, want ErrNotConnected", err)
	}
}

// ─── Active scene ───────────────────────────────────────────────────────────

func TestRegistry_ActiveElements(t *testing.T) {
	reg := NewRegistry(newMemRepo(testTarget("a")), newStaticDialer())
	ctx := context.Background()

	if _, err := reg.ActiveElements(ctx, "a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ActiveElements() before connect error = %v", err)
	}
	if _, err := reg.Connect(ctx, "a"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	elems, err := reg.ActiveElements(ctx, "a")
	if err != nil || len(elems) != 0 {
		t.Errorf("no active scene: got %v, %v; want empty", elems, err)
	}

	if err := reg.SetActiveScene("a", "Main"); err != nil {
		t.Fatalf("SetActiveScene() error = %v", err)
	}
	elems, err = reg.ActiveElements(ctx, "a")
	if err != nil {
		t.Fatalf("ActiveElements() error = %v", err)
	}
	if len(elems) != 2 || elems[0] != "Intro" {
		t.Errorf("ActiveElements() = %v", elems)
	}

	infos := reg.List()
	if infos[0].ActiveScene != "Main" || infos[0].State != StateConnected {
		t.Errorf("Info = %+v", infos[0])
	}
}

func TestSession_ClientCallsAreSingleInflight(t *testing.T) {
	dialer := newStaticDialer()
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)
	sess, err := reg.Connect(context.Background(), "a")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			if i%2 == 0 {
				_, _ = sess.DuplicateElement(ctx, "Main", "Intro")
			} else {
				_ = sess.SetElementEnabled(ctx, "Main", 1, true)
			}
		}()
	}
	wg.Wait()

	if m := dialer.client("a").maxInflight.Load(); m != 1 {
		t.Errorf("max concurrent client calls = %d, want 1", m)
	}
}

func TestSession_CallAfterDisconnect(t *testing.T) {
	dialer := newStaticDialer()
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)
	sess, _ := reg.Connect(context.Background(), "a")

	// Hold the slot so the next call has to wait, then disconnect.
	if err := sess.acquire(context.Background()); err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	_ = reg.Disconnect("a")

	_, err := sess.DuplicateElement(context.Background(), "Main", "Intro")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("DuplicateElement() after disconnect error = %v, want ErrNotConnected", err)
	}
}

func TestSession_InfoHidesCredential(t *testing.T) {
	reg := NewRegistry(newMemRepo(testTarget("a")), newStaticDialer())
	sess, _ := reg.Connect(context.Background(), "a")

	if sess.target.Password != "" {
		t.Error("session retained the credential")
	}
}

// ─── Bulk lifecycle ─────────────────────────────────────────────────────────

func TestRegistry_ConnectAll(t *testing.T) {
	dialer := newStaticDialer()
	dialer.fail["b"] = errors.New("offline")
	reg := NewRegistry(newMemRepo(testTarget("a"), testTarget("b"), testTarget("c")), dialer)
	ctx := context.Background()

	if _, err := reg.Connect(ctx, "c"); err != nil {
		t.Fatalf("Connect(c) error = %v", err)
	}

	n, err := reg.ConnectAll(ctx)
	if err != nil {
		t.Fatalf("ConnectAll() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ConnectAll() connected %d, want 1", n)
	}
	if live := len(reg.List()); live != 2 {
		t.Errorf("live sessions = %d, want 2", live)
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry(newMemRepo(testTarget("a"), testTarget("b")), newStaticDialer())
	ctx := context.Background()
	_, _ = reg.ConnectAll(ctx)

	reg.Close()

	if n := len(reg.List()); n != 0 {
		t.Errorf("live sessions after Close = %d", n)
	}
	if _, err := reg.Connect(ctx, "a"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() after Close error = %v, want ErrConnectionFailed", err)
	}
}

// ─── Target CRUD ────────────────────────────────────────────────────────────

func TestRegistry_CreateTargetDefaults(t *testing.T) {
	reg := NewRegistry(newMemRepo(), newStaticDialer())

	target := &Target{Name: "  Studio  "}
	if err := reg.CreateTarget(context.Background(), target); err != nil {
		t.Fatalf("CreateTarget() error = %v", err)
	}
	if target.ID == "" || target.Host != DefaultHost || target.Port != DefaultPort || target.Name != "Studio" {
		t.Errorf("defaults not applied: %+v", target)
	}
}

func TestRegistry_DeleteLiveTarget(t *testing.T) {
	dialer := newStaticDialer()
	reg := NewRegistry(newMemRepo(testTarget("a")), dialer)
	ctx := context.Background()
	_, _ = reg.Connect(ctx, "a")

	if err := reg.DeleteTarget(ctx, "a"); err != nil {
		t.Fatalf("DeleteTarget() error = %v", err)
	}
	if _, err := reg.Get("a"); !errors.Is(err, ErrNotConnected) {
		t.Error("session still live after delete")
	}
	if _, err := reg.Status(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status() error = %v, want ErrNotFound", err)
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{"valid", Target{Name: "x", Host: "obs.local", Port: 4455}, false},
		{"missing name", Target{Host: "h", Port: 1}, true},
		{"port too high", Target{Name: "x", Host: "h", Port: 70000}, true},
		{"host with path", Target{Name: "x", Host: "h/evil", Port: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(&tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("error %v does not wrap ErrInvalidTarget", err)
			}
		})
	}
}

package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/session"
	"github.com/nerrad567/flashcue-core/internal/subscription"
)

// ─── Test doubles ───────────────────────────────────────────────────────────

type targetRepo struct{}

func (targetRepo) GetByID(_ context.Context, id string) (*session.Target, error) {
	return &session.Target{ID: id, Name: id, Host: "localhost", Port: 4455}, nil
}
func (targetRepo) List(context.Context) ([]session.Target, error) { return nil, nil }
func (targetRepo) Create(context.Context, *session.Target) error  { return nil }
func (targetRepo) Update(context.Context, *session.Target) error  { return nil }
func (targetRepo) Delete(context.Context, string) error           { return nil }

type sceneClient struct {
	mu       sync.Mutex
	elements []string
	lists    int
	steps    []string
}

func (c *sceneClient) ListElements(context.Context, string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	return c.elements, nil
}

func (c *sceneClient) DuplicateElement(_ context.Context, _, name string) (session.Handle, error) {
	c.record("duplicate " + name)
	return 7, nil
}

func (c *sceneClient) SetElementEnabled(_ context.Context, _ string, _ session.Handle, enabled bool) error {
	if enabled {
		c.record("enable")
	} else {
		c.record("disable")
	}
	return nil
}

func (c *sceneClient) RemoveElement(context.Context, string, session.Handle) error {
	c.record("remove")
	return nil
}

func (c *sceneClient) Close() error { return nil }

func (c *sceneClient) record(step string) {
	c.mu.Lock()
	c.steps = append(c.steps, step)
	c.mu.Unlock()
}

func (c *sceneClient) listCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

type staticConditions []subscription.Condition

func (s staticConditions) ConditionsFor(sessionID string, category platform.Category) []subscription.Condition {
	var out []subscription.Condition
	for _, c := range s {
		if c.SessionID == sessionID && c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

type captureSubmitter struct {
	mu   sync.Mutex
	reqs []flash.ActionRequest
	err  error
}

func (s *captureSubmitter) Submit(req flash.ActionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.err
}

// gatedClient holds ListElements until gate is closed.
type gatedClient struct {
	*sceneClient
	entered chan struct{}
	gate    chan struct{}
}

func newGatedClient(elements ...string) *gatedClient {
	return &gatedClient{
		sceneClient: &sceneClient{elements: elements},
		entered:     make(chan struct{}, 1),
		gate:        make(chan struct{}),
	}
}

func (c *gatedClient) ListElements(ctx context.Context, scene string) ([]string, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	select {
	case <-c.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.sceneClient.ListElements(ctx, scene)
}

func (s *captureSubmitter) waitFor(t *testing.T, n int) []flash.ActionRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		reqs := append([]flash.ActionRequest(nil), s.reqs...)
		s.mu.Unlock()
		if len(reqs) >= n {
			return reqs
		}
		if time.Now().After(deadline) {
			t.Fatalf("submitted %d requests, want %d", len(reqs), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *captureSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func connectedRegistry(t *testing.T, client session.SceneClient) *session.Registry {
	t.Helper()
	reg := session.NewRegistry(targetRepo{}, session.DialerFunc(
		func(context.Context, session.Target) (session.SceneClient, error) { return client, nil },
	))
	if _, err := reg.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return reg
}

// ─── Dispatcher ─────────────────────────────────────────────────────────────

func TestDispatcher_ChatListsElementsOnlyWhenCommandMatches(t *testing.T) {
	client := &sceneClient{elements: []string{"Intro", "Outro"}}
	reg := connectedRegistry(t, client)
	_ = reg.SetActiveScene("s1", "Main")

	sub := &captureSubmitter{}
	conds := staticConditions{chatCond("c1", "!intro", "intro")}
	d := NewDispatcher(reg, conds, sub, NewMatcher(time.Second), DispatcherOptions{ElementCacheTTL: time.Minute})
	ctx := context.Background()

	d.dispatch(ctx, "s1", platform.NewChatEvent("hello chat", "viewer"))
	if n := client.listCount(); n != 0 {
		t.Errorf("ListElements calls for unrelated message = %d, want 0", n)
	}

	d.dispatch(ctx, "s1", platform.NewChatEvent("!Intro", "viewer"))
	d.dispatch(ctx, "s1", platform.NewChatEvent("!intro", "viewer"))

	if n := client.listCount(); n != 1 {
		t.Errorf("ListElements calls = %d, want 1 (second served from cache)", n)
	}
	if len(sub.reqs) != 2 || sub.reqs[0].Element != "Intro" || sub.reqs[0].SessionID != "s1" {
		t.Errorf("submitted = %+v", sub.reqs)
	}

	d.InvalidateElements("s1")
	d.dispatch(ctx, "s1", platform.NewChatEvent("!intro", "viewer"))
	if n := client.listCount(); n != 2 {
		t.Errorf("ListElements calls after invalidate = %d, want 2", n)
	}
}

func TestDispatcher_ElementCacheDisabled(t *testing.T) {
	client := &sceneClient{elements: []string{"Intro"}}
	reg := connectedRegistry(t, client)
	_ = reg.SetActiveScene("s1", "Main")

	d := NewDispatcher(reg, staticConditions{chatCond("c1", "!intro", "Intro")}, &captureSubmitter{}, NewMatcher(time.Second), DispatcherOptions{})
	for range 3 {
		d.dispatch(context.Background(), "s1", platform.NewChatEvent("!intro", "viewer"))
	}
	if n := client.listCount(); n != 3 {
		t.Errorf("ListElements calls = %d, want 3", n)
	}
}

func TestDispatcher_NoActiveSceneNoChatMatch(t *testing.T) {
	client := &sceneClient{elements: []string{"Intro"}}
	reg := connectedRegistry(t, client)

	sub := &captureSubmitter{}
	d := NewDispatcher(reg, staticConditions{chatCond("c1", "!intro", "Intro")}, sub, NewMatcher(time.Second), DispatcherOptions{})
	d.dispatch(context.Background(), "s1", platform.NewChatEvent("!intro", "viewer"))

	if len(sub.reqs) != 0 || client.listCount() != 0 {
		t.Errorf("submitted %d, listed %d; want neither", len(sub.reqs), client.listCount())
	}
}

func TestDispatcher_DropsEventsForInactiveSession(t *testing.T) {
	reg := connectedRegistry(t, &sceneClient{})
	_ = reg.Disconnect("s1")

	sub := &captureSubmitter{}
	d := NewDispatcher(reg, staticConditions{giftCond("c1", 1, true)}, sub, NewMatcher(time.Second), DispatcherOptions{})
	d.dispatch(context.Background(), "s1", platform.NewGiftEvent(5, false))

	if len(sub.reqs) != 0 {
		t.Errorf("submitted %d requests for a disconnected session", len(sub.reqs))
	}
}

type panickingConditions struct{}

func (panickingConditions) ConditionsFor(string, platform.Category) []subscription.Condition {
	panic("cache corrupted")
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	reg := connectedRegistry(t, &sceneClient{})
	d := NewDispatcher(reg, panickingConditions{}, &captureSubmitter{}, NewMatcher(time.Second), DispatcherOptions{})

	// Must not panic.
	d.dispatch(context.Background(), "s1", platform.NewGiftEvent(1, false))
}

func TestDispatcher_SubmitErrorsAreAbsorbed(t *testing.T) {
	reg := connectedRegistry(t, &sceneClient{})
	sub := &captureSubmitter{err: flash.ErrQueueFull}
	conds := staticConditions{giftCond("a", 1, true), giftCond("b", 1, true)}

	d := NewDispatcher(reg, conds, sub, NewMatcher(time.Second), DispatcherOptions{})
	d.dispatch(context.Background(), "s1", platform.NewGiftEvent(1, false))

	// The first rejection does not stop the second request.
	if len(sub.reqs) != 2 {
		t.Errorf("Submit calls = %d, want 2", len(sub.reqs))
	}
}

func TestDispatcher_HandleEventDoesNotWaitForListing(t *testing.T) {
	client := newGatedClient("Intro")
	reg := connectedRegistry(t, client)
	_ = reg.SetActiveScene("s1", "Main")

	sub := &captureSubmitter{}
	d := NewDispatcher(reg, staticConditions{chatCond("c1", "!intro", "Intro")}, sub, NewMatcher(time.Second), DispatcherOptions{})
	t.Cleanup(d.Close)

	returned := make(chan struct{})
	go func() {
		d.HandleEvent(context.Background(), "s1", platform.NewChatEvent("!intro", "viewer"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("HandleEvent blocked on the element listing")
	}
	select {
	case <-client.entered:
	case <-time.After(time.Second):
		t.Fatal("element listing never started")
	}
	if n := sub.count(); n != 0 {
		t.Fatalf("submitted %d before the listing answered", n)
	}

	close(client.gate)
	reqs := sub.waitFor(t, 1)
	if reqs[0].Element != "Intro" {
		t.Errorf("element = %q, want Intro", reqs[0].Element)
	}
}

func TestDispatcher_SessionEventsMatchInArrivalOrder(t *testing.T) {
	client := &sceneClient{elements: []string{"A", "B"}}
	reg := connectedRegistry(t, client)
	_ = reg.SetActiveScene("s1", "Main")

	sub := &captureSubmitter{}
	conds := staticConditions{chatCond("a", "!a", "A"), chatCond("b", "!b", "B")}
	d := NewDispatcher(reg, conds, sub, NewMatcher(time.Second), DispatcherOptions{})
	t.Cleanup(d.Close)

	order := []string{"!a", "!b", "!b", "!a", "!b"}
	for _, cmd := range order {
		d.HandleEvent(context.Background(), "s1", platform.NewChatEvent(cmd, "viewer"))
	}

	reqs := sub.waitFor(t, len(order))
	want := []string{"A", "B", "B", "A", "B"}
	for i := range want {
		if reqs[i].Element != want[i] {
			t.Errorf("request %d element = %q, want %q", i, reqs[i].Element, want[i])
		}
	}
}

func TestDispatcher_QueueFullDropsEvents(t *testing.T) {
	client := newGatedClient("Intro")
	reg := connectedRegistry(t, client)
	_ = reg.SetActiveScene("s1", "Main")

	sub := &captureSubmitter{}
	d := NewDispatcher(reg, staticConditions{chatCond("c1", "!intro", "Intro")}, sub, NewMatcher(time.Second), DispatcherOptions{MaxQueuePerSession: 1})
	t.Cleanup(d.Close)

	ev := platform.NewChatEvent("!intro", "viewer")
	d.HandleEvent(context.Background(), "s1", ev)
	<-client.entered

	// One queued behind the running event, the next one dropped.
	d.HandleEvent(context.Background(), "s1", ev)
	d.HandleEvent(context.Background(), "s1", ev)

	close(client.gate)
	sub.waitFor(t, 2)
	time.Sleep(30 * time.Millisecond)
	if n := sub.count(); n != 2 {
		t.Errorf("submitted %d, want 2", n)
	}
}

func TestDispatcher_CloseRefusesEvents(t *testing.T) {
	reg := connectedRegistry(t, &sceneClient{})
	sub := &captureSubmitter{}
	d := NewDispatcher(reg, staticConditions{giftCond("c1", 1, true)}, sub, NewMatcher(time.Second), DispatcherOptions{})

	d.Close()
	d.HandleEvent(context.Background(), "s1", platform.NewGiftEvent(5, false))
	time.Sleep(20 * time.Millisecond)

	if n := sub.count(); n != 0 {
		t.Errorf("submitted %d after Close", n)
	}
	d.Close()
}

func TestDispatcher_CloseCancelsPendingListing(t *testing.T) {
	client := newGatedClient("Intro")
	reg := connectedRegistry(t, client)
	_ = reg.SetActiveScene("s1", "Main")

	d := NewDispatcher(reg, staticConditions{chatCond("c1", "!intro", "Intro")}, &captureSubmitter{}, NewMatcher(time.Second), DispatcherOptions{ListTimeout: time.Minute})
	d.HandleEvent(context.Background(), "s1", platform.NewChatEvent("!intro", "viewer"))
	<-client.entered

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close waited for the element listing")
	}
}

// ─── End to end ─────────────────────────────────────────────────────────────

type condRepo struct {
	mu    sync.Mutex
	seq   int64
	conds []subscription.Condition
}

func (r *condRepo) GetByID(_ context.Context, id string) (*subscription.Condition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.conds {
		if r.conds[i].ID == id {
			return r.conds[i].DeepCopy(), nil
		}
	}
	return nil, subscription.ErrConditionNotFound
}

func (r *condRepo) List(context.Context) ([]subscription.Condition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]subscription.Condition(nil), r.conds...), nil
}

func (r *condRepo) ListBySessionCategory(_ context.Context, sessionID string, category platform.Category) ([]subscription.Condition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return staticConditions(r.conds).ConditionsFor(sessionID, category), nil
}

func (r *condRepo) Create(_ context.Context, c *subscription.Condition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.Seq = r.seq
	r.conds = append(r.conds, *c.DeepCopy())
	return nil
}

func (r *condRepo) Delete(context.Context, string) error { return nil }

type callbackSource struct {
	mu        sync.Mutex
	callbacks []func(platform.Event)
}

func (s *callbackSource) Subscribe(_ context.Context, _ platform.Category, _ string, cb func(platform.Event)) (func(), error) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
	return func() {}, nil
}

type waitRecorder struct {
	done chan *flash.Execution
}

func (r *waitRecorder) Record(_ context.Context, exec *flash.Execution) error {
	r.done <- exec
	return nil
}

func TestEndToEnd_GiftFlashesMainHype(t *testing.T) {
	ctx := context.Background()
	client := &sceneClient{}
	reg := connectedRegistry(t, client)

	executor := flash.NewExecutor(reg, flash.Options{})
	rec := &waitRecorder{done: make(chan *flash.Execution, 1)}
	executor.SetRecorder(rec)
	t.Cleanup(executor.Close)

	source := &callbackSource{}
	mgr := subscription.NewManager(&condRepo{}, source, "broadcaster")
	matcher := NewMatcher(20 * time.Millisecond)
	d := NewDispatcher(reg, mgr, executor, matcher, DispatcherOptions{})
	t.Cleanup(d.Close)
	mgr.SetHandler(d)

	_, err := mgr.Subscribe(ctx, subscription.NewCondition{
		SessionID: "s1",
		Category:  platform.CategoryGiftSubscription,
		Scene:     "Main",
		Element:   "Hype",
		Fields:    map[string]any{"quantity_threshold": 3, "allow_anonymous": true},
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(source.callbacks) != 1 {
		t.Fatalf("registrations = %d, want 1", len(source.callbacks))
	}

	source.callbacks[0](platform.NewGiftEvent(3, false))

	var exec *flash.Execution
	select {
	case exec = <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("flash never completed")
	}

	if exec.Status != flash.StatusCompleted || exec.Scene != "Main" || exec.Element != "Hype" || exec.DurationMS != 20 {
		t.Errorf("execution = %+v", exec)
	}

	client.mu.Lock()
	steps := append([]string(nil), client.steps...)
	client.mu.Unlock()
	want := []string{"duplicate Hype", "enable", "disable", "remove"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, steps[i], want[i])
		}
	}

	select {
	case extra := <-rec.done:
		t.Errorf("unexpected second execution %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEndToEnd_DisconnectedSessionIgnoresEvents(t *testing.T) {
	client := &sceneClient{}
	reg := connectedRegistry(t, client)
	executor := flash.NewExecutor(reg, flash.Options{})
	t.Cleanup(executor.Close)

	conds := staticConditions{giftCond("c1", 1, true)}
	d := NewDispatcher(reg, conds, executor, NewMatcher(10*time.Millisecond), DispatcherOptions{})
	t.Cleanup(d.Close)

	if err := reg.Disconnect("s1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	d.HandleEvent(context.Background(), "s1", platform.NewGiftEvent(5, false))
	time.Sleep(20 * time.Millisecond)

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.steps) != 0 {
		t.Errorf("steps after disconnect = %v", client.steps)
	}
	if _, err := reg.Get("s1"); !errors.Is(err, session.ErrNotConnected) {
		t.Errorf("Get() error = %v", err)
	}
}

package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/session"
)

const (
	defaultElementCacheSize = 256
	defaultListTimeout      = 2 * time.Second
	defaultMaxQueue         = 64
)

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	// ElementCacheTTL keeps active-scene element listings per (session,
	// scene). Zero disables the cache.
	ElementCacheTTL time.Duration

	// ElementCacheSize bounds the number of cached listings.
	ElementCacheSize int

	// ListTimeout bounds one element listing call.
	ListTimeout time.Duration

	// MaxQueuePerSession caps events waiting to be matched per session.
	MaxQueuePerSession int
}

type elementKey struct {
	sessionID string
	scene     string
}

// inbox is the FIFO of events waiting to be matched for one session.
type inbox struct {
	events []platform.Event
}

// Dispatcher routes delivered events through the Matcher to the executor.
//
// HandleEvent only queues the event. Each session's events are matched in
// arrival order on a worker goroutine, so the element listing a chat
// command needs never runs on the event source's delivery goroutine. That
// goroutine also carries the scene bridge replies the listing waits for.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	sessions   Sessions
	conditions Conditions
	executor   Submitter
	matcher    *Matcher

	elements    *expirable.LRU[elementKey, []string] // nil when disabled
	listTimeout time.Duration
	maxQueue    int

	logger Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	inboxes map[string]*inbox
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher wires the matcher between the condition cache and executor.
func NewDispatcher(sessions Sessions, conditions Conditions, executor Submitter, matcher *Matcher, opts DispatcherOptions) *Dispatcher {
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = defaultListTimeout
	}
	if opts.ElementCacheSize <= 0 {
		opts.ElementCacheSize = defaultElementCacheSize
	}
	if opts.MaxQueuePerSession <= 0 {
		opts.MaxQueuePerSession = defaultMaxQueue
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sessions:    sessions,
		conditions:  conditions,
		executor:    executor,
		matcher:     matcher,
		listTimeout: opts.ListTimeout,
		maxQueue:    opts.MaxQueuePerSession,
		logger:      noopLogger{},
		ctx:         ctx,
		cancel:      cancel,
		inboxes:     make(map[string]*inbox),
	}
	if opts.ElementCacheTTL > 0 {
		d.elements = expirable.NewLRU[elementKey, []string](opts.ElementCacheSize, nil, opts.ElementCacheTTL)
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// HandleEvent queues ev for the session's worker and returns at once.
// Events arriving while the session's queue is full, or after Close, are
// dropped and logged.
func (d *Dispatcher) HandleEvent(_ context.Context, sessionID string, ev platform.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Debug("event dropped, dispatcher closed", "session_id", sessionID, "category", ev.Category)
		return
	}

	in, ok := d.inboxes[sessionID]
	if !ok {
		in = &inbox{}
		d.inboxes[sessionID] = in
		d.wg.Add(1)
		go d.runInbox(sessionID, in)
	}
	if len(in.events) >= d.maxQueue {
		d.logger.Warn("event dropped, dispatch queue full",
			"session_id", sessionID,
			"category", ev.Category,
			"queued", len(in.events),
		)
		return
	}
	in.events = append(in.events, ev)
}

// Close refuses new events, cancels in-flight element listings and waits
// for every session worker to exit. Queued events are discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for _, in := range d.inboxes {
		in.events = nil
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// runInbox drains one session's events in order and removes the inbox once
// empty.
func (d *Dispatcher) runInbox(sessionID string, in *inbox) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(in.events) == 0 {
			delete(d.inboxes, sessionID)
			d.mu.Unlock()
			return
		}
		ev := in.events[0]
		in.events[0] = platform.Event{}
		in.events = in.events[1:]
		d.mu.Unlock()

		d.dispatch(d.ctx, sessionID, ev)
	}
}

// dispatch matches ev against the session's conditions and submits a flash
// for every match. Failures are logged; nothing is returned to the source.
func (d *Dispatcher) dispatch(ctx context.Context, sessionID string, ev platform.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in event dispatch",
				"session_id", sessionID,
				"category", ev.Category,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	conds := d.conditions.ConditionsFor(sessionID, ev.Category)
	if len(conds) == 0 {
		d.logger.Debug("no conditions for event", "session_id", sessionID, "category", ev.Category)
		return
	}

	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		d.logger.Info("event for inactive session dropped", "session_id", sessionID, "category", ev.Category)
		return
	}

	var elements []string
	if needsElements(ev, conds) {
		elements, err = d.activeElements(ctx, sess)
		if err != nil {
			d.logger.Warn("listing active scene elements failed",
				"session_id", sessionID,
				"scene", sess.ActiveScene(),
				"error", err,
			)
		}
	}

	reqs := d.matcher.Match(ev, conds, elements)
	d.logger.Debug("event matched",
		"session_id", sessionID,
		"category", ev.Category,
		"conditions", len(conds),
		"matches", len(reqs),
	)

	for _, req := range reqs {
		if err := d.executor.Submit(req); err != nil {
			d.logger.Warn("flash not queued",
				"session_id", sessionID,
				"condition_id", req.ConditionID,
				"element", req.Element,
				"error", err,
			)
		}
	}
}

// InvalidateElements drops cached element listings of one session.
func (d *Dispatcher) InvalidateElements(sessionID string) {
	if d.elements == nil {
		return
	}
	for _, key := range d.elements.Keys() {
		if key.sessionID == sessionID {
			d.elements.Remove(key)
		}
	}
}

// activeElements lists the active scene, through the cache when enabled.
// No active scene yields an empty listing.
func (d *Dispatcher) activeElements(ctx context.Context, sess *session.Session) ([]string, error) {
	scene := sess.ActiveScene()
	if scene == "" {
		return nil, nil
	}

	key := elementKey{sess.ID(), scene}
	if d.elements != nil {
		if cached, ok := d.elements.Get(key); ok {
			return cached, nil
		}
	}

	listCtx, cancel := context.WithTimeout(ctx, d.listTimeout)
	defer cancel()

	elements, err := sess.ListElements(listCtx, scene)
	if err != nil {
		return nil, err
	}
	if d.elements != nil {
		d.elements.Add(key, elements)
	}
	return elements, nil
}

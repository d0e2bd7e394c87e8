package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/flashcue-core/internal/platform"
)

// subKey identifies one armed platform registration.
type subKey struct {
	sessionID string
	category  platform.Category
}

// Manager persists trigger conditions and arms platform delivery for them.
//
// Conditions are mirrored in an in-memory cache populated by RefreshCache and
// kept in sync by Subscribe and DeleteCondition, so ConditionsFor never
// touches the repository.
//
// All public methods are thread-safe.
type Manager struct {
	repo          Repository
	source        EventSource
	broadcasterID string
	maxFlashTime  time.Duration // zero means no limit beyond the field range

	cacheMu sync.RWMutex
	cache   map[string][]*Condition // by session ID, ascending Seq

	// subMu is held across EventSource.Subscribe so a (session, category)
	// is never registered twice.
	subMu  sync.Mutex
	active map[subKey]func()

	handlerMu sync.RWMutex
	handler   EventHandler

	logger Logger
}

// NewManager creates a condition manager.
//
// Parameters:
//   - repo: Condition persistence
//   - source: Platform event source
//   - broadcasterID: Platform channel whose events are requested
func NewManager(repo Repository, source EventSource, broadcasterID string) *Manager {
	return &Manager{
		repo:          repo,
		source:        source,
		broadcasterID: broadcasterID,
		cache:         make(map[string][]*Condition),
		active:        make(map[subKey]func()),
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetMaxFlashTime rejects conditions whose duration_ms override is not
// below d, the executor's limit for one whole flash sequence.
func (m *Manager) SetMaxFlashTime(d time.Duration) {
	m.maxFlashTime = d
}

// SetHandler sets the receiver of delivered events.
func (m *Manager) SetHandler(h EventHandler) {
	m.handlerMu.Lock()
	m.handler = h
	m.handlerMu.Unlock()
}

// RefreshCache reloads all conditions from the repository.
// This should be called on application startup.
func (m *Manager) RefreshCache(ctx context.Context) error {
	conds, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading conditions: %w", err)
	}

	cache := make(map[string][]*Condition)
	for i := range conds {
		c := conds[i]
		cache[c.SessionID] = append(cache[c.SessionID], &c)
	}
	for _, list := range cache {
		sortBySeq(list)
	}

	m.cacheMu.Lock()
	m.cache = cache
	m.cacheMu.Unlock()

	m.logger.Info("condition cache refreshed", "count", len(conds))
	return nil
}

// Subscribe validates and persists a new condition, then arms platform
// delivery for its (session, category) unless it is already armed.
//
// Returns:
//   - *Condition: The stored condition; also returned with ErrSubscriptionFailed
//   - error: ErrInvalidCondition (nothing persisted), ErrSessionNotFound,
//     or ErrSubscriptionFailed (condition persisted, not armed)
func (m *Manager) Subscribe(ctx context.Context, nc NewCondition) (*Condition, error) {
	if err := ValidateNewCondition(&nc); err != nil {
		return nil, err
	}
	if err := m.checkDuration(nc.Fields); err != nil {
		return nil, err
	}

	cond := &Condition{
		ID:        GenerateID(),
		SessionID: strings.TrimSpace(nc.SessionID),
		Category:  nc.Category,
		Scene:     strings.TrimSpace(nc.Scene),
		Element:   strings.TrimSpace(nc.Element),
		Fields:    deepCopyMap(nc.Fields),
	}
	if cond.Fields == nil {
		cond.Fields = map[string]any{}
	}
	if err := m.repo.Create(ctx, cond); err != nil {
		return nil, err
	}
	m.cacheAdd(cond.DeepCopy())

	m.logger.Info("trigger condition created",
		"condition_id", cond.ID,
		"session_id", cond.SessionID,
		"category", cond.Category,
		"scene", cond.Scene,
		"element", cond.Element,
	)

	if err := m.ensureArmed(ctx, cond.SessionID, cond.Category); err != nil {
		return cond, err
	}
	return cond, nil
}

// Activate re-reads the session's conditions from the repository, then
// arms one registration per category that has conditions. Categories
// already armed are skipped.
func (m *Manager) Activate(ctx context.Context, sessionID string) error {
	m.reload(ctx, sessionID)

	var errs []error
	for _, cat := range m.categoriesFor(sessionID) {
		if err := m.ensureArmed(ctx, sessionID, cat); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release cancels every armed registration for the session.
func (m *Manager) Release(sessionID string) {
	m.subMu.Lock()
	var cancels []func()
	for key, cancel := range m.active {
		if key.sessionID == sessionID {
			cancels = append(cancels, cancel)
			delete(m.active, key)
		}
	}
	m.subMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		m.logger.Info("platform subscriptions released", "session_id", sessionID, "count", len(cancels))
	}
}

// IsActive reports whether delivery is armed for (session, category).
func (m *Manager) IsActive(sessionID string, category platform.Category) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	_, ok := m.active[subKey{sessionID, category}]
	return ok
}

// ConditionsFor returns the session's conditions of one category in
// insertion order. The result is served from the cache.
func (m *Manager) ConditionsFor(sessionID string, category platform.Category) []Condition {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	var out []Condition
	for _, c := range m.cache[sessionID] {
		if c.Category == category {
			out = append(out, *c.DeepCopy())
		}
	}
	return out
}

// ListConditions returns every condition of the session in insertion order.
func (m *Manager) ListConditions(_ context.Context, sessionID string) ([]Condition, error) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	list := m.cache[sessionID]
	out := make([]Condition, 0, len(list))
	for _, c := range list {
		out = append(out, *c.DeepCopy())
	}
	return out, nil
}

// GetCondition retrieves a condition by ID.
func (m *Manager) GetCondition(_ context.Context, id string) (*Condition, error) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	for _, list := range m.cache {
		for _, c := range list {
			if c.ID == id {
				return c.DeepCopy(), nil
			}
		}
	}
	return nil, ErrConditionNotFound
}

// DeleteCondition removes a condition. When it was the last of its category
// for the session, that category's registration is released too.
func (m *Manager) DeleteCondition(ctx context.Context, id string) error {
	existing, err := m.GetCondition(ctx, id)
	if err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}

	remaining := m.cacheRemove(existing.SessionID, id, existing.Category)
	m.logger.Info("trigger condition deleted", "condition_id", id, "session_id", existing.SessionID)

	if remaining == 0 {
		m.releaseOne(subKey{existing.SessionID, existing.Category})
	}
	return nil
}

// ForgetSession drops the cached conditions of a deleted target and releases
// its registrations. The rows themselves cascade in the database.
func (m *Manager) ForgetSession(sessionID string) {
	m.Release(sessionID)
	m.cacheMu.Lock()
	delete(m.cache, sessionID)
	m.cacheMu.Unlock()
}

// Close releases every armed registration.
func (m *Manager) Close() {
	m.subMu.Lock()
	cancels := make([]func(), 0, len(m.active))
	for key, cancel := range m.active {
		cancels = append(cancels, cancel)
		delete(m.active, key)
	}
	m.subMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// checkDuration rejects a duration_ms override the executor would refuse.
func (m *Manager) checkDuration(fields map[string]any) error {
	if m.maxFlashTime <= 0 {
		return nil
	}
	c := &Condition{Fields: fields}
	d, ok, err := c.Duration()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	if ok && d >= m.maxFlashTime {
		return fmt.Errorf("%w: %s must be below %d (max flash time)", ErrInvalidCondition, FieldDurationMS, m.maxFlashTime.Milliseconds())
	}
	return nil
}

// reload replaces the cached conditions of sessionID with the stored rows,
// one category at a time, so rows written while the session was offline
// are armed on connect. A category whose read fails keeps its cached rows.
func (m *Manager) reload(ctx context.Context, sessionID string) {
	for _, cat := range platform.Categories() {
		conds, err := m.repo.ListBySessionCategory(ctx, sessionID, cat)
		if err != nil {
			m.logger.Warn("reloading conditions failed, using cache",
				"session_id", sessionID,
				"category", cat,
				"error", err,
			)
			continue
		}
		m.cacheReplace(sessionID, cat, conds)
	}
}

// ensureArmed registers delivery for (session, category) once.
func (m *Manager) ensureArmed(ctx context.Context, sessionID string, category platform.Category) error {
	key := subKey{sessionID, category}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	if _, ok := m.active[key]; ok {
		m.logger.Debug("platform subscription already active", "session_id", sessionID, "category", category)
		return nil
	}

	cancel, err := m.source.Subscribe(ctx, category, m.broadcasterID, m.callbackFor(sessionID))
	if err != nil {
		m.logger.Warn("platform subscription rejected", "session_id", sessionID, "category", category, "error", err)
		return fmt.Errorf("%w: %s/%s: %w", ErrSubscriptionFailed, sessionID, category, err)
	}
	if cancel == nil {
		cancel = func() {}
	}
	m.active[key] = cancel

	m.logger.Info("platform subscription armed", "session_id", sessionID, "category", category)
	return nil
}

func (m *Manager) releaseOne(key subKey) {
	m.subMu.Lock()
	cancel, ok := m.active[key]
	delete(m.active, key)
	m.subMu.Unlock()

	if ok {
		cancel()
	}
}

// callbackFor binds the session ID into the delivery callback.
func (m *Manager) callbackFor(sessionID string) func(platform.Event) {
	return func(ev platform.Event) {
		m.handlerMu.RLock()
		h := m.handler
		m.handlerMu.RUnlock()

		if h == nil {
			m.logger.Debug("event dropped, no handler", "session_id", sessionID, "category", ev.Category)
			return
		}
		h.HandleEvent(context.Background(), sessionID, ev)
	}
}

func (m *Manager) categoriesFor(sessionID string) []platform.Category {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	seen := make(map[platform.Category]bool)
	var cats []platform.Category
	for _, c := range m.cache[sessionID] {
		if !seen[c.Category] {
			seen[c.Category] = true
			cats = append(cats, c.Category)
		}
	}
	return cats
}

func (m *Manager) cacheAdd(c *Condition) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	list := append(m.cache[c.SessionID], c)
	sortBySeq(list)
	m.cache[c.SessionID] = list
}

// cacheReplace swaps the session's cached conditions of one category for
// conds.
func (m *Manager) cacheReplace(sessionID string, category platform.Category, conds []Condition) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	var list []*Condition
	for _, c := range m.cache[sessionID] {
		if c.Category != category {
			list = append(list, c)
		}
	}
	for i := range conds {
		list = append(list, conds[i].DeepCopy())
	}
	if len(list) == 0 {
		delete(m.cache, sessionID)
		return
	}
	sortBySeq(list)
	m.cache[sessionID] = list
}

// cacheRemove drops a condition and reports how many of its category remain
// for the session.
func (m *Manager) cacheRemove(sessionID, id string, category platform.Category) int {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	list := m.cache[sessionID]
	kept := list[:0]
	remaining := 0
	for _, c := range list {
		if c.ID == id {
			continue
		}
		kept = append(kept, c)
		if c.Category == category {
			remaining++
		}
	}
	if len(kept) == 0 {
		delete(m.cache, sessionID)
	} else {
		m.cache[sessionID] = kept
	}
	return remaining
}

func sortBySeq(list []*Condition) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
}

package twitch

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/internal/platform"
)

const eventQoS = 1

// Bus is the MQTT surface the source needs. *mqtt.Client satisfies it.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the Source.
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

type topicListeners struct {
	category  platform.Category
	listeners map[uint64]func(platform.Event)
}

// Source delivers decoded platform events to registered callbacks.
//
// Thread Safety: All methods are safe for concurrent use. Callbacks run on
// the MQTT delivery goroutine without any Source lock held.
type Source struct {
	bus    Bus
	topics mqtt.Topics

	mu      sync.Mutex
	byTopic map[string]*topicListeners
	nextID  uint64

	logger Logger
}

// NewSource creates a source over bus.
func NewSource(bus Bus) *Source {
	return &Source{
		bus:     bus,
		byTopic: make(map[string]*topicListeners),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the source.
func (s *Source) SetLogger(logger Logger) {
	s.logger = logger
}

// Subscribe registers callback for events of category on broadcasterID's
// channel.
//
// Parameters:
//   - ctx: Unused; registration does not block on the platform
//   - category: Event category
//   - broadcasterID: Channel whose events are delivered
//   - callback: Receives each decoded event
//
// Returns:
//   - cancel: Removes the registration; safe to call more than once
//   - error: platform.ErrUnknownCategory or the bus subscribe error
func (s *Source) Subscribe(_ context.Context, category platform.Category, broadcasterID string, callback func(platform.Event)) (func(), error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", platform.ErrUnknownCategory, category)
	}
	if broadcasterID == "" {
		return nil, ErrNoBroadcaster
	}
	topic := s.topics.PlatformEvent(string(category), broadcasterID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byTopic[topic]
	if !ok {
		if err := s.bus.Subscribe(topic, eventQoS, s.handler(topic)); err != nil {
			return nil, fmt.Errorf("subscribing %s: %w", topic, err)
		}
		entry = &topicListeners{category: category, listeners: make(map[uint64]func(platform.Event))}
		s.byTopic[topic] = entry
		s.logger.Info("platform event subscription added", "topic", topic)
	}

	s.nextID++
	id := s.nextID
	entry.listeners[id] = callback

	var once sync.Once
	return func() { once.Do(func() { s.remove(topic, id) }) }, nil
}

// Listeners returns the number of callbacks registered across all topics.
func (s *Source) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byTopic {
		n += len(e.listeners)
	}
	return n
}

func (s *Source) remove(topic string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byTopic[topic]
	if !ok {
		return
	}
	delete(entry.listeners, id)
	if len(entry.listeners) > 0 {
		return
	}
	delete(s.byTopic, topic)
	if err := s.bus.Unsubscribe(topic); err != nil {
		s.logger.Warn("unsubscribing platform events", "topic", topic, "error", err)
		return
	}
	s.logger.Info("platform event subscription removed", "topic", topic)
}

func (s *Source) handler(topic string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		s.mu.Lock()
		entry, ok := s.byTopic[topic]
		var (
			category  platform.Category
			callbacks []func(platform.Event)
		)
		if ok {
			category = entry.category
			callbacks = make([]func(platform.Event), 0, len(entry.listeners))
			for _, cb := range entry.listeners {
				callbacks = append(callbacks, cb)
			}
		}
		s.mu.Unlock()

		if len(callbacks) == 0 {
			return nil
		}

		ev, err := platform.Decode(category, payload)
		if err != nil {
			s.logger.Warn("dropping malformed platform event", "topic", topic, "error", err)
			return nil
		}
		for _, cb := range callbacks {
			s.deliver(topic, cb, ev)
		}
		return nil
	}
}

func (s *Source) deliver(topic string, cb func(platform.Event), ev platform.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("platform event callback panicked", "topic", topic, "panic", r)
		}
	}()
	cb(ev)
}

// Package mqtttest provides an in-process stand-in for the MQTT broker so
// bridge adapters can be tested without Mosquitto.
package mqtttest

import (
	"errors"
	"sync"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
)

// Message is one publish seen by the Broker.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Broker implements the Publish/Subscribe/Unsubscribe surface of
// *mqtt.Client.
//
// A Broker from NewBroker delivers synchronously on the publishing
// goroutine. One from NewOrderedBroker delivers every message on a single
// goroutine in publish order, as the paho client does by default: a
// handler that waits for another message's delivery stalls until it gives
// up.
type Broker struct {
	mu        sync.Mutex
	subs      map[string]mqtt.MessageHandler
	published []Message

	// PublishErr, when set, fails every Publish.
	PublishErr error
	// SubscribeErr, when set, fails every Subscribe.
	SubscribeErr error

	// ordered mode only
	ordered   bool
	queue     []Message
	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewBroker returns an empty broker with synchronous delivery.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]mqtt.MessageHandler)}
}

// NewOrderedBroker returns an empty broker with one delivery goroutine.
// Close stops it.
func NewOrderedBroker() *Broker {
	b := NewBroker()
	b.ordered = true
	b.wake = make(chan struct{}, 1)
	b.done = make(chan struct{})
	b.stopped = make(chan struct{})
	go b.route()
	return b
}

// Close stops the delivery goroutine of an ordered broker once the handler
// it is running returns. Queued messages are discarded. A no-op for a
// synchronous broker.
func (b *Broker) Close() {
	if !b.ordered {
		return
	}
	b.closeOnce.Do(func() { close(b.done) })
	<-b.stopped
}

// Publish records the message and hands it to every matching subscriber.
func (b *Broker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return mqtt.ErrInvalidTopic
	}

	b.mu.Lock()
	if b.PublishErr != nil {
		err := b.PublishErr
		b.mu.Unlock()
		return err
	}
	m := Message{Topic: topic, Payload: payload, QoS: qos, Retained: retained}
	b.published = append(b.published, m)
	if b.ordered {
		b.queue = append(b.queue, m)
		b.mu.Unlock()
		select {
		case b.wake <- struct{}{}:
		default:
		}
		return nil
	}
	handlers := b.handlersFor(topic)
	b.mu.Unlock()

	for _, h := range handlers {
		deliver(h, topic, payload)
	}
	return nil
}

// handlersFor returns the handlers whose filter matches topic. Callers hold
// b.mu.
func (b *Broker) handlersFor(topic string) []mqtt.MessageHandler {
	var handlers []mqtt.MessageHandler
	for filter, h := range b.subs {
		if mqtt.MatchTopic(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	return handlers
}

// route is the delivery goroutine of an ordered broker.
func (b *Broker) route() {
	defer close(b.stopped)

	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}

		for {
			select {
			case <-b.done:
				return
			default:
			}

			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			m := b.queue[0]
			b.queue[0] = Message{}
			b.queue = b.queue[1:]
			handlers := b.handlersFor(m.Topic)
			b.mu.Unlock()

			for _, h := range handlers {
				deliver(h, m.Topic, m.Payload)
			}
		}
	}
}

func deliver(h mqtt.MessageHandler, topic string, payload []byte) {
	defer func() { _ = recover() }() //nolint:errcheck // mirrors the client's panic recovery
	_ = h(topic, payload)            //nolint:errcheck // the client only logs handler errors
}

// Subscribe registers handler for filter, replacing any previous one.
func (b *Broker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if topic == "" {
		return mqtt.ErrInvalidTopic
	}
	if handler == nil {
		return errors.New("mqtttest: nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubscribeErr != nil {
		return b.SubscribeErr
	}
	b.subs[topic] = handler
	return nil
}

// Unsubscribe drops the handler for filter.
func (b *Broker) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.subs, topic)
	b.mu.Unlock()
	return nil
}

// HasSubscription reports whether filter is subscribed.
func (b *Broker) HasSubscription(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[topic]
	return ok
}

// Published returns every recorded message whose topic matches filter.
func (b *Broker) Published(filter string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.published {
		if mqtt.MatchTopic(filter, m.Topic) {
			out = append(out, m)
		}
	}
	return out
}

// SetPublishErr sets PublishErr under the broker lock.
func (b *Broker) SetPublishErr(err error) {
	b.mu.Lock()
	b.PublishErr = err
	b.mu.Unlock()
}

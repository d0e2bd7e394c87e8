package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
)

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message from a subscribed filter.
//
// Handlers run on paho's delivery goroutine and must not block. A returned
// error is logged and counted, never retried.
type MessageHandler func(topic string, payload []byte) error

// StateFunc observes link changes. up is false on connection loss, with
// the cause in err.
type StateFunc func(up bool, err error)

// Stats is a snapshot of the client's traffic counters.
type Stats struct {
	Connected       bool   `json:"connected"`
	Subscriptions   int    `json:"subscriptions"`
	Published       uint64 `json:"published"`
	Delivered       uint64 `json:"delivered"`
	HandlerFailures uint64 `json:"handler_failures"`
	Reconnects      uint64 `json:"reconnects"`
}

type route struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// Client is the core's connection to the FlashCue bus.
//
// Routes are remembered so a reconnect re-subscribes them, and the client
// owns the retained flashcue/system/status topic. Safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	online   atomic.Bool
	connects atomic.Uint64

	routesMu sync.RWMutex
	routes   map[string]route

	watchMu  sync.RWMutex
	watchers []StateFunc

	logMu  sync.RWMutex
	logger Logger

	published atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64
}

// Connect dials the broker described by cfg and blocks until the first
// connection is up or defaultConnectTimeout passes.
//
// The broker is told to publish a retained offline status for us if the
// link dies without Close. Auto-reconnect is on; each reconnect restores
// routes and republishes the online status.
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed when the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, routes: make(map[string]route)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.linkUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.linkDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.warn("reconnecting to MQTT broker", "broker", brokerURL(cfg.Broker))
	})

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: no CONNACK from %s within %v",
			ErrConnectionFailed, brokerURL(cfg.Broker), defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler is asynchronous; callers may publish right away.
	c.online.Store(true)
	return c, nil
}

func (c *Client) linkUp() {
	c.online.Store(true)
	if c.connects.Add(1) > 1 {
		c.resubscribe()
	}
	c.publishStatus(statusOnline, "")
	c.notify(true, nil)
}

func (c *Client) linkDown(err error) {
	c.online.Store(false)
	c.warn("MQTT connection lost", "error", err)
	c.notify(false, err)
}

func (c *Client) notify(up bool, err error) {
	c.watchMu.RLock()
	watchers := append([]StateFunc(nil), c.watchers...)
	c.watchMu.RUnlock()
	for _, fn := range watchers {
		fn(up, err)
	}
}

// resubscribe restores every route after the broker dropped our session.
// Failures are logged; the next reconnect tries again.
func (c *Client) resubscribe() {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()

	for _, r := range c.routes {
		tok := c.paho.Subscribe(r.filter, r.qos, c.deliver(r.handler))
		go func(filter string) {
			if err := await(tok, ErrSubscribeFailed); err != nil {
				c.warn("restoring MQTT subscription failed", "filter", filter, "error", err)
			}
		}(r.filter)
	}
}

func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	return c.paho.Publish(Topics{}.SystemStatus(), c.QoS(), true,
		statusPayload(c.cfg.Broker.ClientID, status, reason))
}

// Close marks the core offline on the bus and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(statusOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the link is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

// Watch registers fn for link changes. It fires on the initial connect
// too when registered before it happens.
func (c *Client) Watch(fn StateFunc) {
	if fn == nil {
		return
	}
	c.watchMu.Lock()
	c.watchers = append(c.watchers, fn)
	c.watchMu.Unlock()
}

// Stats returns the current traffic counters.
func (c *Client) Stats() Stats {
	c.routesMu.RLock()
	n := len(c.routes)
	c.routesMu.RUnlock()

	var reconnects uint64
	if k := c.connects.Load(); k > 1 {
		reconnects = k - 1
	}
	return Stats{
		Connected:       c.IsConnected(),
		Subscriptions:   n,
		Published:       c.published.Load(),
		Delivered:       c.delivered.Load(),
		HandlerFailures: c.failures.Load(),
		Reconnects:      reconnects,
	}
}

// SetLogger sets the logger for link changes and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) log() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

func (c *Client) warn(msg string, args ...any) {
	if l := c.log(); l != nil {
		l.Warn(msg, args...)
	}
}

// deliver adapts a MessageHandler to paho.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs one handler call. A panic is recovered so paho's delivery
// goroutine survives it.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	c.delivered.Add(1)
	defer func() {
		if r := recover(); r != nil {
			c.failures.Add(1)
			if l := c.log(); l != nil {
				l.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.failures.Add(1)
		c.warn("MQTT handler returned error", "topic", topic, "error", err)
	}
}

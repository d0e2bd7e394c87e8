package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/internal/session"
)

const (
	defaultRequestTimeout = 2 * time.Second
	defaultConnectTimeout = 5 * time.Second

	// closeTimeout bounds the disconnect request sent by Client.Close.
	closeTimeout = 2 * time.Second

	requestQoS = 1
)

// Bus is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the Bridge.
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

// Options configures a Bridge. Zero values take defaults.
type Options struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// Bridge correlates scene requests with their responses.
//
// Thread Safety: All methods are safe for concurrent use. No lock is held
// while publishing, so a broker that delivers synchronously is fine.
type Bridge struct {
	bus    Bus
	topics mqtt.Topics
	opts   Options

	mu      sync.Mutex
	pending map[string]chan Response
	started bool
	stopped bool

	logger Logger
}

// NewBridge creates a bridge over bus. Call Start before dialing.
func NewBridge(bus Bus, opts Options) *Bridge {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	return &Bridge{
		bus:     bus,
		opts:    opts,
		pending: make(map[string]chan Response),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to scene bridge responses.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	if err := b.bus.Subscribe(b.topics.AllSceneResponses(), requestQoS, b.handleResponse); err != nil {
		b.mu.Lock()
		b.started = false
		b.mu.Unlock()
		return fmt.Errorf("subscribing to scene responses: %w", err)
	}
	b.logger.Info("scene bridge client started", "topic", b.topics.AllSceneResponses())
	return nil
}

// Stop unsubscribes and fails every waiting request with ErrClosed.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	pending := b.pending
	b.pending = make(map[string]chan Response)
	b.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if err := b.bus.Unsubscribe(b.topics.AllSceneResponses()); err != nil {
		b.logger.Warn("unsubscribing scene responses", "error", err)
	}
}

// Pending returns the number of requests awaiting a response.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dial asks the scene bridge to open a link to target and returns a client
// bound to it.
//
// Parameters:
//   - ctx: Cancels the connect; the bridge connect timeout also applies
//   - target: Persisted target including its credential
//
// Returns:
//   - session.SceneClient: A *Client for target
//   - error: ErrTimeout, ErrRejected, ErrPublishFailed or ErrClosed
func (b *Bridge) Dial(ctx context.Context, target session.Target) (session.SceneClient, error) {
	req := Request{
		Op:       OpConnect,
		Host:     target.Host,
		Port:     target.Port,
		Password: target.Password,
	}
	if _, err := b.request(ctx, target.ID, req, b.opts.ConnectTimeout); err != nil {
		return nil, err
	}
	return &Client{bridge: b, targetID: target.ID}, nil
}

// request publishes req to targetID and waits for the matching response.
// The request is registered before it is published.
func (b *Bridge) request(ctx context.Context, targetID string, req Request, timeout time.Duration) (Response, error) {
	req.RequestID = uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshalling %s request: %w", req.Op, err)
	}

	ch := make(chan Response, 1)
	b.mu.Lock()
	if b.stopped || !b.started {
		b.mu.Unlock()
		return Response{}, ErrClosed
	}
	b.pending[req.RequestID] = ch
	b.mu.Unlock()
	defer b.forget(req.RequestID)

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.bus.Publish(b.topics.SceneRequest(targetID), payload, requestQoS, false); err != nil {
		return Response{}, fmt.Errorf("%w: %s %s: %w", ErrPublishFailed, req.Op, targetID, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrClosed
		}
		if !resp.OK {
			msg := resp.Error
			if msg == "" {
				msg = "no reason given"
			}
			return resp, fmt.Errorf("%w: %s %s: %s", ErrRejected, req.Op, targetID, msg)
		}
		return resp, nil
	case <-rctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: %s %s after %s: %w", ErrTimeout, req.Op, targetID, timeout, rctx.Err())
	}
}

func (b *Bridge) forget(requestID string) {
	b.mu.Lock()
	delete(b.pending, requestID)
	b.mu.Unlock()
}

// handleResponse routes one response to its waiting request. Unknown or late
// responses are dropped.
func (b *Bridge) handleResponse(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		b.logger.Warn("malformed scene response", "topic", topic, "error", err)
		return nil
	}
	if resp.RequestID == "" {
		resp.RequestID = topic[strings.LastIndex(topic, "/")+1:]
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	if ok {
		delete(b.pending, resp.RequestID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping unmatched scene response", "request_id", resp.RequestID)
		return nil
	}
	ch <- resp
	return nil
}

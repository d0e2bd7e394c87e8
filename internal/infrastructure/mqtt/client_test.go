package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// ─── Validation (no broker needed) ──────────────────────────────────

func TestIsConnected_InitialState(t *testing.T) {
	c := &Client{}
	if c.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid qos", "flashcue/x", 3, nil, ErrInvalidQoS},
		{"wildcard topic", "flashcue/+/x", 1, nil, ErrInvalidTopic},
		{"oversized payload", "flashcue/x", 1, make([]byte, maxPayloadSize+1), ErrPayloadTooLarge},
		{"not connected", "flashcue/x", 1, []byte("{}"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{routes: make(map[string]route)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a/b", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribe_DropsTrackingWhileOffline(t *testing.T) {
	c := &Client{routes: map[string]route{
		"a/b": {filter: "a/b", qos: 1},
	}}

	if err := c.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if c.HasSubscription("a/b") {
		t.Error("subscription should no longer be tracked")
	}
}

func TestValidFilter(t *testing.T) {
	tests := []struct {
		filter string
		ok     bool
	}{
		{"flashcue/response/obs/+", true},
		{"flashcue/event/twitch/#", true},
		{"#", true},
		{"+/+", true},
		{"", false},
		{"flashcue/#/obs", false},
		{"flashcue/resp+", false},
		{"flashcue/ev#", false},
	}
	for _, tt := range tests {
		err := validFilter(tt.filter)
		if (err == nil) != tt.ok {
			t.Errorf("validFilter(%q) = %v, want ok=%v", tt.filter, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("validFilter(%q) error = %v, want ErrInvalidTopic", tt.filter, err)
		}
	}
}

func TestFilters_Sorted(t *testing.T) {
	c := &Client{routes: map[string]route{
		"flashcue/response/obs/+": {},
		"flashcue/event/twitch/#": {},
	}}
	got := c.Filters()
	if len(got) != 2 || got[0] != "flashcue/event/twitch/#" {
		t.Errorf("Filters() = %v", got)
	}
}

func TestPublishJSON_EncodingError(t *testing.T) {
	c := &Client{}
	err := c.PublishJSON("flashcue/x", map[string]any{"bad": make(chan int)})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

// ─── Handler wrapping ───────────────────────────────────────────────

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	if len(logger.errors) != 1 {
		t.Fatalf("errors logged = %d, want 1", len(logger.errors))
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { return fmt.Errorf("bad payload") }, "t", nil)

	if len(logger.warns) != 1 {
		t.Fatalf("warnings logged = %d, want 1", len(logger.warns))
	}
}

func TestStats_CountsDeliveriesAndFailures(t *testing.T) {
	c := &Client{routes: map[string]route{"a/+": {}}}
	c.dispatch(func(string, []byte) error { return nil }, "a/1", nil)
	c.dispatch(func(string, []byte) error { return fmt.Errorf("bad") }, "a/2", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "a/3", nil)

	st := c.Stats()
	if st.Delivered != 3 || st.HandlerFailures != 2 {
		t.Errorf("Stats() = %+v, want 3 delivered and 2 failures", st)
	}
	if st.Subscriptions != 1 || st.Connected {
		t.Errorf("Stats() = %+v, want 1 subscription and disconnected", st)
	}
}

func TestWatch_NotifiesInOrder(t *testing.T) {
	c := &Client{}
	var got []string
	c.Watch(func(up bool, _ error) { got = append(got, fmt.Sprintf("first:%v", up)) })
	c.Watch(func(up bool, _ error) { got = append(got, fmt.Sprintf("second:%v", up)) })
	c.Watch(nil)

	c.notify(false, errors.New("eof"))

	if len(got) != 2 || got[0] != "first:false" || got[1] != "second:false" {
		t.Errorf("notifications = %v", got)
	}
}

func TestDispatch_NoLoggerIsSafe(t *testing.T) {
	c := &Client{}
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
}

// ─── Options and payloads ───────────────────────────────────────────

func TestBrokerURL(t *testing.T) {
	plain := brokerURL(config.MQTTBrokerConfig{Host: "localhost", Port: 1883})
	if plain != "tcp://localhost:1883" {
		t.Errorf("brokerURL() = %q", plain)
	}
	secure := brokerURL(config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true})
	if secure != "ssl://broker:8883" {
		t.Errorf("brokerURL() TLS = %q", secure)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg StatusMessage
	if err := json.Unmarshal(statusPayload("core-1", statusOffline, "graceful_shutdown"), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Status != statusOffline || msg.ClientID != "core-1" || msg.Reason != "graceful_shutdown" {
		t.Errorf("unexpected status message: %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

// ─── Topics ─────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.SceneRequest("studio-a"), "flashcue/request/obs/studio-a"},
		{topics.SceneResponse("req-1"), "flashcue/response/obs/req-1"},
		{topics.AllSceneResponses(), "flashcue/response/obs/+"},
		{topics.PlatformEvent("channel.chat.message", "42"), "flashcue/event/twitch/channel.chat.message/42"},
		{topics.AllPlatformEvents(), "flashcue/event/twitch/#"},
		{topics.SystemStatus(), "flashcue/system/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/x/c", true},
		{"a/+/c", "a/x/y/c", false},
		{"a/#", "a/b/c/d", true},
		{"a/#", "a", true},
		{"#", "anything/at/all", true},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
		{"flashcue/response/obs/+", "flashcue/response/obs/req-1", true},
	}
	for _, tt := range tests {
		if got := MatchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

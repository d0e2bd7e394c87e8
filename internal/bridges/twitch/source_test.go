package twitch

import (
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/flashcue-core/internal/platform"
)

type collector struct {
	mu     sync.Mutex
	events []platform.Event
}

func (c *collector) add(ev platform.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) last() platform.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

var (
	giftTopic = mqtt.Topics{}.PlatformEvent(string(platform.CategoryGiftSubscription), "1234")
	chatTopic = mqtt.Topics{}.PlatformEvent(string(platform.CategoryChatMessage), "1234")
)

func publish(t *testing.T, b *mqtttest.Broker, topic, payload string) {
	t.Helper()
	if err := b.Publish(topic, []byte(payload), 1, false); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestSource_DeliversDecodedEvents(t *testing.T) {
	broker := mqtttest.NewBroker()
	src := NewSource(broker)

	var gifts, chats collector
	if _, err := src.Subscribe(t.Context(), platform.CategoryGiftSubscription, "1234", gifts.add); err != nil {
		t.Fatalf("Subscribe gift: %v", err)
	}
	if _, err := src.Subscribe(t.Context(), platform.CategoryChatMessage, "1234", chats.add); err != nil {
		t.Fatalf("Subscribe chat: %v", err)
	}

	publish(t, broker, giftTopic, `{"total":5,"is_anonymous":true}`)
	publish(t, broker, chatTopic, `{"message_text":"!hype","chatter_user_name":"viewer"}`)

	if gifts.len() != 1 || chats.len() != 1 {
		t.Fatalf("gifts=%d chats=%d, want 1 each", gifts.len(), chats.len())
	}
	g := gifts.last()
	if g.Category != platform.CategoryGiftSubscription || g.Gift == nil || g.Gift.Total != 5 || !g.Gift.IsAnonymous {
		t.Errorf("gift event = %+v", g)
	}
	c := chats.last()
	if c.Chat == nil || c.Chat.MessageText != "!hype" {
		t.Errorf("chat event = %+v", c)
	}
}

func TestSource_OtherBroadcasterIgnored(t *testing.T) {
	broker := mqtttest.NewBroker()
	src := NewSource(broker)

	var got collector
	if _, err := src.Subscribe(t.Context(), platform.CategoryGiftSubscription, "1234", got.add); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	publish(t, broker, mqtt.Topics{}.PlatformEvent(string(platform.CategoryGiftSubscription), "9999"), `{"total":1}`)

	if got.len() != 0 {
		t.Errorf("received %d events for another channel", got.len())
	}
}

func TestSource_MalformedPayloadDropped(t *testing.T) {
	broker := mqtttest.NewBroker()
	src := NewSource(broker)

	var got collector
	if _, err := src.Subscribe(t.Context(), platform.CategoryGiftSubscription, "1234", got.add); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	publish(t, broker, giftTopic, `not json`)
	publish(t, broker, giftTopic, `{"is_anonymous":false}`)
	publish(t, broker, giftTopic, `{"total":2}`)

	if got.len() != 1 {
		t.Errorf("events = %d, want only the well-formed one", got.len())
	}
}

func TestSource_FanOutAndRelease(t *testing.T) {
	broker := mqtttest.NewBroker()
	src := NewSource(broker)

	var a, b collector
	cancelA, err := src.Subscribe(t.Context(), platform.CategoryGiftSubscription, "1234", a.add)
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	cancelB, err := src.Subscribe(t.Context(), platform.CategoryGiftSubscription, "1234", b.add)
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	if src.Listeners() != 2 {
		t.Fatalf("Listeners() = %d, want 2", src.Listeners())
	}

	publish(t, broker, giftTopic, `{"total":1}`)
	if a.len() != 1 || b.len() != 1 {
		t.Fatalf("a=%d b=%d, want 1 each", a.len(), b.len())
	}

	cancelA()
	cancelA()
	if !broker.HasSubscription(giftTopic) {
		t.Fatal("topic released while a listener remains")
	}
	publish(t, broker, giftTopic, `{"total":1}`)
	if a.len() != 1 || b.len() != 2 {
		t.Errorf("after cancelA: a=%d b=%d, want 1 and 2", a.len(), b.len())
	}

	cancelB()
	if broker.HasSubscription(giftTopic) {
		t.Error("topic still subscribed after last cancel")
	}
	if src.Listeners() != 0 {
		t.Errorf("Listeners() = %d, want 0", src.Listeners())
	}
}

func TestSource_CallbackPanicContained(t *testing.T) {
	broker := mqtttest.NewBroker()
	src := NewSource(broker)

	var got collector
	if _, err := src.Subscribe(t.Context(), platform.CategoryChatMessage, "1234", func(platform.Event) { panic("boom") }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := src.Subscribe(t.Context(), platform.CategoryChatMessage, "1234", got.add); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	publish(t, broker, chatTopic, `{"message_text":"hi"}`)

	if got.len() != 1 {
		t.Errorf("healthy listener received %d events, want 1", got.len())
	}
}

func TestSource_SubscribeErrors(t *testing.T) {
	broker := mqtttest.NewBroker()
	src := NewSource(broker)
	noop := func(platform.Event) {}

	if _, err := src.Subscribe(t.Context(), platform.Category("channel.follow"), "1234", noop); !errors.Is(err, platform.ErrUnknownCategory) {
		t.Errorf("unknown category error = %v", err)
	}
	if _, err := src.Subscribe(t.Context(), platform.CategoryChatMessage, "", noop); !errors.Is(err, ErrNoBroadcaster) {
		t.Errorf("empty broadcaster error = %v", err)
	}

	broker.SubscribeErr = errors.New("broker offline")
	if _, err := src.Subscribe(t.Context(), platform.CategoryChatMessage, "1234", noop); err == nil {
		t.Error("expected bus subscribe error")
	}
	if src.Listeners() != 0 {
		t.Errorf("failed subscribe left %d listeners", src.Listeners())
	}
}

package mqtt

import (
	"fmt"
	"sort"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe routes messages matching filter to handler.
//
// The filter may use + and # wildcards. Subscribing a filter again replaces
// its handler. The route is remembered and restored after a reconnect; it
// is forgotten again if the broker refuses it.
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllSceneResponses(), 1,
//	    func(topic string, payload []byte) error {
//	        return pending.resolve(payload)
//	    })
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routesMu.Lock()
	prev, replaced := c.routes[filter]
	c.routes[filter] = route{filter: filter, qos: qos, handler: handler}
	c.routesMu.Unlock()

	if err := await(c.paho.Subscribe(filter, qos, c.deliver(handler)), ErrSubscribeFailed); err != nil {
		c.routesMu.Lock()
		if replaced {
			c.routes[filter] = prev
		} else {
			delete(c.routes, filter)
		}
		c.routesMu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe drops the route for filter. Messages already in flight may
// still be delivered. The route is forgotten even when the client is
// offline, so a reconnect does not bring it back.
func (c *Client) Unsubscribe(filter string) error {
	if err := validFilter(filter); err != nil {
		return err
	}

	c.routesMu.Lock()
	delete(c.routes, filter)
	c.routesMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Unsubscribe(filter), ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of remembered routes.
func (c *Client) SubscriptionCount() int {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()
	return len(c.routes)
}

// HasSubscription reports whether filter itself is routed. It does not
// match topics against wildcard filters; see MatchTopic for that.
func (c *Client) HasSubscription(filter string) bool {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()
	_, ok := c.routes[filter]
	return ok
}

// Filters returns the routed filters in lexical order.
func (c *Client) Filters() []string {
	c.routesMu.RLock()
	out := make([]string, 0, len(c.routes))
	for f := range c.routes {
		out = append(out, f)
	}
	c.routesMu.RUnlock()
	sort.Strings(out)
	return out
}

// await waits for the broker to acknowledge tok, wrapping failures in kind.
func await(tok pahomqtt.Token, kind error) error {
	if !tok.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no ack within %v", kind, defaultPublishTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

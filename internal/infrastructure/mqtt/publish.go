package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxPayloadSize caps outgoing messages. Scene commands and platform
// events are small JSON documents; anything near this is a bug.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker's ack at the
// given QoS.
//
// topic must be a concrete topic; wildcards are rejected.
//
// Returns:
//   - ErrInvalidTopic, ErrInvalidQoS or ErrPayloadTooLarge for bad input
//   - ErrNotConnected while the link is down
//   - ErrPublishFailed when the broker does not accept the message
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed); err != nil {
		return err
	}
	c.published.Add(1)
	return nil
}

// PublishJSON encodes v and publishes it non-retained at the configured QoS.
func (c *Client) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload for %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, data, c.QoS(), false)
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// validFilter checks a subscription filter: non-empty, # only as the last
// level and wildcards only as whole levels.
func validFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, lvl := range levels {
		switch {
		case lvl == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: # must be the last level in %q", ErrInvalidTopic, filter)
		case lvl != "#" && lvl != "+" && strings.ContainsAny(lvl, "+#"):
			return fmt.Errorf("%w: partial-level wildcard in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

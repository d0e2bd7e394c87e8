package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the FlashCue bus.
//
// Bridge topics use the flat scheme: flashcue/{kind}/{protocol}/{id}
const (
	TopicPrefix       = "flashcue"
	TopicPrefixSystem = "flashcue/system"
)

// Protocol names used in bridge topics.
const (
	ProtocolOBS    = "obs"
	ProtocolTwitch = "twitch"
)

// Topics provides builders for FlashCue MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SceneRequest("studio-a")
//	// Returns: "flashcue/request/obs/studio-a"
type Topics struct{}

// SceneRequest returns the topic the scene bridge consumes commands for a
// target on.
//
// Example: flashcue/request/obs/studio-a
func (Topics) SceneRequest(targetID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, ProtocolOBS, targetID)
}

// SceneResponse returns the topic the scene bridge answers a request on.
//
// Example: flashcue/response/obs/4b1c...
func (Topics) SceneResponse(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, ProtocolOBS, requestID)
}

// AllSceneResponses matches every scene bridge response.
//
// Pattern: flashcue/response/obs/+
func (Topics) AllSceneResponses() string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, ProtocolOBS)
}

// PlatformEvent returns the topic the platform bridge publishes events of one
// category for one broadcaster on.
//
// Example: flashcue/event/twitch/channel.chat.message/123456
func (Topics) PlatformEvent(category, broadcasterID string) string {
	return fmt.Sprintf("%s/event/%s/%s/%s", TopicPrefix, ProtocolTwitch, category, broadcasterID)
}

// AllPlatformEvents matches every platform event.
//
// Pattern: flashcue/event/twitch/#
func (Topics) AllPlatformEvents() string {
	return fmt.Sprintf("%s/event/%s/#", TopicPrefix, ProtocolTwitch)
}

// SystemStatus returns the retained core status topic.
//
// Example: flashcue/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// MatchTopic reports whether topic matches the subscription filter,
// honouring the + and # wildcards.
func MatchTopic(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, part := range f {
		if part == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

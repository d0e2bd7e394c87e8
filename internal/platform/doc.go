// Package platform defines the streaming-platform events the trigger engine
// consumes: the category enum and the typed payloads published by the
// platform bridge.
//
// Category values are the platform's EventSub type names so they can be used
// directly in bridge topics:
//
//	flashcue/event/twitch/channel.subscription.gift/{broadcaster_id}
//	flashcue/event/twitch/channel.chat.message/{broadcaster_id}
//
// An Event carries exactly one payload, matching its Category. Unknown
// categories are rejected by Decode and never reach matching.
package platform

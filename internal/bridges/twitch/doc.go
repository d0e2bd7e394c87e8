// Package twitch consumes platform events published by the EventSub bridge.
//
// The EventSub bridge owns the platform websocket and re-publishes every
// notification on
//
//	flashcue/event/twitch/{category}/{broadcaster_id}
//
// Source implements subscription.EventSource on top of those topics. Several
// listeners may share one topic; the MQTT subscription is held while at least
// one listener remains.
package twitch

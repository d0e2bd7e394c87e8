// Package app assembles FlashCue Core from its parts.
//
// App builds each component exactly once and threads it to its consumers:
//
//	platform events ─▶ twitch.Source ─▶ subscription.Manager
//	                                        │ (session id bound)
//	                                        ▼
//	                               trigger.Dispatcher ─▶ flash.Executor ─▶ session.Registry ─▶ obs.Bridge
//
// Session lifecycle hooks keep the pipeline consistent: a connect arms the
// session's platform registrations, a disconnect releases them and drops
// cached element listings. Both are broadcast on the WebSocket hub.
//
// The MQTT bus and the InfluxDB writer are injected so the whole graph can
// run against an in-process broker in tests.
package app

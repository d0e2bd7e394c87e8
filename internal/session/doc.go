// Package session is the connection registry for scene-control targets.
//
// A Target is the persisted configuration of one OBS instance (host, port,
// password). Connecting a target dials it through a Dialer and registers a
// live Session that holds the resulting SceneClient.
//
// Per-target state machine:
//
//	Configured ──Connect──▶ Connecting ──ok──▶ Connected
//	     ▲                      │                  │
//	     └──────── dial error ──┘     Disconnect ──┘
//
// A failed dial returns the target to Configured; nothing is registered.
// At most one live or connecting Session exists per target ID.
//
// # Key Types
//
//   - Target: persisted configuration row
//   - Session: one live link; serialises client calls and owns a lifetime context
//   - Registry: connect/disconnect lifecycle plus target CRUD passthrough
//   - SceneClient, Dialer: the scene-control collaborator (see bridges/obs)
//
// # Thread Safety
//
// Registry and Session are safe for concurrent use. Calls through a Session's
// client are single-inflight: a second call waits for the first to finish.
package session

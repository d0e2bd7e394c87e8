// Package api implements the operator HTTP API and WebSocket hub for
// FlashCue Core.
//
// This package provides:
//   - REST endpoints for scene-control targets and their live sessions
//   - Trigger condition CRUD per session
//   - Manual test flashes and flash history
//   - A WebSocket hub broadcasting flash outcomes and session changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API sits beside the trigger pipeline, not in it. Platform events flow
// MQTT → subscription manager → dispatcher → executor without touching HTTP;
// the API only configures that pipeline and observes it.
//
// # Errors
//
// Domain sentinels map to HTTP statuses in one place (writeDomainError):
// not found → 404, already/not connected → 409, connection or platform
// registration failure → 502, invalid input → 400.
//
// # Security
//
// There is no authentication. Bind the listener to a trusted interface.
// Target credentials are accepted on write and never returned.
package api

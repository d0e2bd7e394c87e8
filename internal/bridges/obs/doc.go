// Package obs talks to the scene bridge over MQTT.
//
// The scene bridge is the process that holds the real scene-control
// websocket to each streaming-software instance. Core never speaks that
// protocol directly: every operation is a JSON request published to
//
//	flashcue/request/obs/{target_id}
//
// and answered on
//
//	flashcue/response/obs/{request_id}
//
// Requests carry a fresh request_id; the Bridge correlates responses back to
// the waiting caller and applies a per-request timeout.
//
// Bridge implements session.Dialer, and every Client it dials implements
// session.SceneClient, so the session registry never knows MQTT is involved.
package obs

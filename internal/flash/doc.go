// Package flash runs the bounded "flash" sequence that briefly shows a scene
// element on a live session.
//
// A flash is five steps against the session's scene client:
//
//  1. duplicate the element
//  2. enable the duplicate
//  3. wait for the hold duration (cancellable timer)
//  4. disable the duplicate
//  5. remove the duplicate
//
// Once a duplicate exists the executor always attempts step 5, even when
// enable or disable fail. A failed duplicate aborts the sequence.
//
// # Ordering
//
// Submit places each request on a FIFO lane keyed by (session, element). One
// worker per non-empty lane runs its flashes strictly in order, so two
// flashes of the same element never overlap. Different lanes run
// concurrently; individual client calls are still serialised per session by
// the session itself.
//
// # Cancellation
//
// A flash is abandoned, and recorded as cancelled, when its session
// disconnects or the executor is closed. Every sequence is also bounded by a
// hard timeout.
//
// # Outcomes
//
// Each run yields an Execution. It is persisted through a Recorder, written
// to Telemetry, and broadcast as "flash.completed". Errors never propagate
// back to the Submit caller.
package flash

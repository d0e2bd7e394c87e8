// Package trigger decides which conditions an inbound platform event fires
// and hands the resulting flashes to the executor.
//
// Matcher is pure: given an event, the session's conditions of that
// category and the element names of the active scene, it returns one
// flash.ActionRequest per satisfied condition, in condition order.
//
// Dispatcher is the subscription.EventHandler wired between the platform
// event source and the flash executor. HandleEvent only queues; each
// session's events are matched in order on a worker goroutine.
package trigger

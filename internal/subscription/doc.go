// Package subscription stores trigger conditions and arms platform event
// delivery for them.
//
// A Condition binds one session and one event category to a scene element.
// The Manager persists conditions through a Repository, mirrors them in an
// in-memory cache for the dispatch path, and asks the EventSource for
// delivery of each (session, category) pair exactly once.
//
// # Fields
//
// Category-specific predicate values live in Condition.Fields:
//
//	channel.subscription.gift: quantity_threshold (int >= 1), allow_anonymous (bool)
//	channel.chat.message:      command_text (non-empty string)
//	both (optional):           duration_ms (int, 1..60000)
//
// Values are parsed leniently: integers may arrive as JSON numbers or decimal
// strings, booleans as JSON booleans or the usual checkbox strings.
//
// # Lifecycle
//
//	mgr := subscription.NewManager(repo, source, broadcasterID)
//	mgr.SetHandler(dispatcher)
//	mgr.RefreshCache(ctx)
//	mgr.Activate(ctx, sessionID)   // on connect
//	mgr.Release(sessionID)         // on disconnect
package subscription

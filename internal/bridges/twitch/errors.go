package twitch

import "errors"

// ErrNoBroadcaster is returned when Subscribe is called without a channel.
var ErrNoBroadcaster = errors.New("twitch: broadcaster id is required")

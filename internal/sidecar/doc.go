// Package sidecar supervises the bridge processes FlashCue Core talks to
// over MQTT.
//
// The scene-control bridge and the platform event relay are separate
// programs. When their command lines are configured, Core starts them,
// forwards their output to its own log, and restarts them with exponential
// backoff when they exit. Deployments that run the bridges elsewhere leave
// the sidecars list empty and nothing here is used.
//
// Example usage:
//
//	p, err := sidecar.New(sidecar.Config{
//	    Name:             "obs-bridge",
//	    Command:          []string{"/usr/local/bin/flashcue-obs-bridge", "--mqtt", "localhost:1883"},
//	    RestartOnFailure: true,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Stop()
package sidecar

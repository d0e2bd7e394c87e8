// Package mqtt provides MQTT client connectivity for FlashCue Core.
//
// MQTT is the bus between the core and its bridges:
//
//	FlashCue Core ↔ MQTT Broker ↔ scene bridge (OBS) / platform bridge (Twitch)
//
// The core publishes scene commands on flashcue/request/obs/{target_id} and
// reads replies on flashcue/response/obs/{request_id}. The platform bridge
// publishes events on flashcue/event/twitch/{category}/{broadcaster_id}.
// The core's own liveness is the retained flashcue/system/status topic,
// backed by an LWT.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSceneResponses(), 1, handler)
//
// Handlers are wrapped with panic recovery; a panicking handler is logged
// and the client keeps running.
package mqtt

// Package config loads FlashCue Core settings from config.yaml.
//
// Load starts from Default, overlays the YAML file, then applies
// FLASHCUE_* environment overrides and runs Validate. Credentials (the
// MQTT password, the InfluxDB token) belong in the environment or in a
// .env file next to the binary, not in the YAML.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	flash := cfg.Triggers.FlashDuration()
package config

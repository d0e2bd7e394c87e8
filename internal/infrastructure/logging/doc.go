// Package logging provides structured logging for FlashCue Core.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	flashLog := logger.Component("flash").Session(id)
//	flashLog.Info("flash completed", "element", name)
//
// # Security
//
// Attribute keys containing "password", "token" or "secret" are redacted
// by the handler. Do not rely on it for values logged under other keys.
package logging

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "flashcue"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[redacted]"

// secretKeys are matched against the lower-cased attribute key.
var secretKeys = []string{"password", "token", "secret"}

// Logger is the slog.Logger every FlashCue component logs through.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging section of config.yaml.
// Output "stderr" selects stderr; anything else is stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(cfg, version, out)
}

// NewWithWriter is New writing to w. cfg.Output is ignored.
//
// Every entry carries service and version. Attributes keyed like a
// password or token are redacted, so a scene target or config struct
// logged whole does not leak its credentials.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With("service", ServiceName, "version", version)}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
				return a
			}
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// parseLevel maps a config level to slog. Unknown values mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags entries with the subsystem that wrote them.
//
//	log.Component("mqtt").Warn("connection lost")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Session tags entries with a scene-control session ID.
func (l *Logger) Session(id string) *Logger {
	return l.With("session_id", id)
}

// Default is the logger used until config.yaml has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard drops every entry. For tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

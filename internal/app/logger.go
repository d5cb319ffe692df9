package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var redactedKeys = map[string]bool{
	"password":      true,
	"new_password":  true,
	"password_hash": true,
	"secret":        true,
	"token":         true,
	"authorization": true,
}

// NewLogger builds the process logger on stdout. LOG_FORMAT=json selects the
// JSON handler; anything else is logfmt-style text.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: cfg.SlogLevel() == slog.LevelDebug,
		Level:     cfg.SlogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if redactedKeys[strings.ToLower(a.Key)] {
				return slog.String(a.Key, "[redacted]")
			}
			return a
		},
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	if cfg != nil && cfg.AppEnv != "" {
		logger = logger.With(slog.String("env", cfg.AppEnv))
	}
	return logger
}

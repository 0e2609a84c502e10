package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/agentbridge/internal/config"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/lmittmann/tint"
)

// NewLogger builds the process logger from the log section. Every handler
// is wrapped in a security.RedactingHandler, so credentials known to
// redactor never reach the output.
func NewLogger(w io.Writer, cfg config.LogConfig, redactor *security.Redactor) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("app: log level: %w", err)
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "", config.FormatText:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case config.FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case config.FormatPretty:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	default:
		return nil, fmt.Errorf("app: unknown log format %q", cfg.Format)
	}

	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(security.NewRedactingHandler(handler, redactor)), nil
}

// Package observability wraps log/slog with the redaction and context-key
// conventions the teacher repo uses throughout its subsystems.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
)

// ContextKey identifies a value injected into a request/session-scoped context.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	SessionIDKey ContextKey = "session_id"
	ChannelKey   ContextKey = "channel"
)

// LogConfig configures the daemon's structured logger.
type LogConfig struct {
	Level          string // debug|info|warn|error
	Format         string // json|text
	Output         io.Writer
	AddSource      bool
	RedactPatterns []*regexp.Regexp
}

// DefaultRedactPatterns scrubs provider API keys, bearer tokens, and
// generic secrets before any attribute value reaches the log sink.
var DefaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`),
	regexp.MustCompile(`(?i)(password|secret|token)\s*[:=]\s*\S+`),
}

// Logger wraps *slog.Logger with redaction baked into the handler chain.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from cfg, defaulting Output to os.Stderr and Format to "json".
func New(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if len(cfg.RedactPatterns) == 0 {
		cfg.RedactPatterns = DefaultRedactPatterns
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}

	var base slog.Handler
	if cfg.Format == "text" {
		base = slog.NewTextHandler(cfg.Output, opts)
	} else {
		base = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &Logger{Logger: slog.New(&redactHandler{next: base, patterns: cfg.RedactPatterns})}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger enriched with request/session/channel fields
// found on ctx, mirroring the teacher's per-request field propagation.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.Logger
	for _, key := range []ContextKey{RequestIDKey, SessionIDKey, ChannelKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			logger = logger.With(string(key), v)
		}
	}
	return logger
}

package observability

import (
	"context"
	"log/slog"
	"regexp"
)

// redactHandler scrubs DefaultRedactPatterns matches from every string
// attribute before delegating to next, so secrets never reach the sink
// regardless of which handler (json/text) writes it.
type redactHandler struct {
	next     slog.Handler
	patterns []*regexp.Regexp
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, record slog.Record) error {
	redacted := slog.NewRecord(record.Time, record.Level, h.redactString(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *redactHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(h.redactString(a.Value.String()))
	}
	return a
}

func (h *redactHandler) redactString(s string) string {
	for _, pattern := range h.patterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(redacted), patterns: h.patterns}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), patterns: h.patterns}
}

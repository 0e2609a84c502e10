package security

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
)

// RedactingHandler wraps a slog.Handler and redacts secrets from the
// message and every attribute before passing records on.
//
// Attributes and groups added with WithAttrs and WithGroup are kept and
// redacted when a record is handled, not when they are attached: session
// API keys become known after long-lived loggers were derived, and must
// still be redacted from them.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
	goas     []groupOrAttrs
}

// groupOrAttrs is one WithGroup or WithAttrs call.
type groupOrAttrs struct {
	group string
	attrs []slog.Attr
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler creates a handler that wraps inner, applying
// redactor to every record.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{
		inner:    inner,
		redactor: redactor,
	}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rebuilds the record with the accumulated groups and attributes,
// redacted, and delegates to the inner handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	for i := len(h.goas) - 1; i >= 0; i-- {
		goa := h.goas[i]
		if goa.group == "" {
			attrs = append(slices.Clone(goa.attrs), attrs...)
			continue
		}
		if len(attrs) > 0 {
			attrs = []slog.Attr{{Key: goa.group, Value: slog.GroupValue(attrs...)}}
		}
	}

	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	for _, a := range attrs {
		out.AddAttrs(h.redactAttr(a))
	}
	return h.inner.Handle(ctx, out)
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(groupOrAttrs{attrs: slices.Clone(attrs)})
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(groupOrAttrs{group: name})
}

func (h *RedactingHandler) with(goa groupOrAttrs) *RedactingHandler {
	return &RedactingHandler{
		inner:    h.inner,
		redactor: h.redactor,
		goas:     append(slices.Clip(h.goas), goa),
	}
}

// redactAttr recursively redacts string values in an attribute.
func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(redacted...)
	case slog.KindAny:
		// Raw frames are logged as bytes; everything else, errors
		// included, through its string form.
		var s string
		switch v := a.Value.Any().(type) {
		case json.RawMessage:
			s = string(v)
		case []byte:
			s = string(v)
		default:
			s = a.Value.String()
		}
		if redacted := h.redactor.Redact(s); redacted != s {
			a.Value = slog.StringValue(redacted)
		}
	}
	return a
}

package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const attrKey contextKey = "logAttrs"

// ContextHandler implements [slog.Handler] and folds any attributes
// carried on the context into each record. Lets the scheduler tag a
// whole delivery run with subscriber and day once, instead of at every
// call site.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps handler with context-attribute support.
func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{Handler: handler}
}

// Handle implements [slog.Handler].
func (h ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs, ok := ctx.Value(attrKey).([]slog.Attr)
	if ok {
		record.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, record)
}

// With returns a context whose attributes get attached to every record
// logged through a [ContextHandler].
func With(ctx context.Context, toAppend ...slog.Attr) context.Context {
	attrs, ok := ctx.Value(attrKey).([]slog.Attr)
	if !ok {
		attrs = []slog.Attr{}
	}

	attrs = append(attrs, toAppend...)
	return context.WithValue(ctx, attrKey, attrs)
}

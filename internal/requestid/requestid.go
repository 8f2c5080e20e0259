// Package requestid carries the per-request id through contexts and log records.
package requestid

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

const (
	Header  = "X-Request-Id"
	LogAttr = "request_id"
)

type contextKey struct{}

func New() string {
	return uuid.NewString()
}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Handler adds the request id of the record's context to every record
type Handler struct {
	slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{Handler: next}
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := FromContext(ctx); ok {
		record.AddAttrs(slog.String(LogAttr, id))
	}
	return h.Handler.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}

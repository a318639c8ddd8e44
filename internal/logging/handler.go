// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package logging builds the service's slog logger. Every record names the
// service and build, and records logged under a traced request carry the
// trace and span identifiers so log lines can be joined with spans.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// spanHandler stamps trace and span identifiers on records. The identifiers
// and the service attributes stay at the top level even under WithGroup, so
// derived handlers are rebuilt from the ungrouped root for traced records.
type spanHandler struct {
	root    slog.Handler
	derive  []func(slog.Handler) slog.Handler
	current slog.Handler
}

func newSpanHandler(root slog.Handler) *spanHandler {
	return &spanHandler{root: root, current: root}
}

func (h *spanHandler) Handle(ctx context.Context, r slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() && !sc.HasSpanID() {
		//nolint:wrapcheck // handlers pass errors through unchanged
		return h.current.Handle(ctx, r)
	}

	ids := make([]slog.Attr, 0, 2)
	if sc.HasTraceID() {
		ids = append(ids, slog.String("trace_id", sc.TraceID().String()))
	}
	if sc.HasSpanID() {
		ids = append(ids, slog.String("span_id", sc.SpanID().String()))
	}
	next := h.root.WithAttrs(ids)
	for _, d := range h.derive {
		next = d(next)
	}
	//nolint:wrapcheck // handlers pass errors through unchanged
	return next.Handle(ctx, r)
}

func (h *spanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.current.Enabled(ctx, level)
}

func (h *spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *spanHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *spanHandler) with(d func(slog.Handler) slog.Handler) *spanHandler {
	return &spanHandler{
		root:    h.root,
		derive:  append(slices.Clip(h.derive), d),
		current: d(h.current),
	}
}

// ParseLevel maps debug, info, warn and error to a slog level. Anything else
// is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup returns a logger for the login service writing to w, or to stderr
// when w is nil. format is "text" or "json"; anything else means json.
func Setup(service, version, format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var out slog.Handler = slog.NewJSONHandler(w, opts)
	if format == "text" {
		out = slog.NewTextHandler(w, opts)
	}

	root := out.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("version", version),
	})
	return slog.New(newSpanHandler(root))
}

// SetDefault installs the logger Setup builds as slog's default and
// returns it.
func SetDefault(service, version, format, level string, w io.Writer) *slog.Logger {
	logger := Setup(service, version, format, level, w)
	slog.SetDefault(logger)
	return logger
}

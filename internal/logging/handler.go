// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a custom slog handler that forwards logs at WARN
// level and above into the dashboard notification feed, so operational
// problems surface next to content activity.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cfph/ngocms-go/internal/notify"
)

// FeedHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level logs to the notification feed.
type FeedHandler struct {
	inner slog.Handler
	feed  *notify.Log
	level slog.Level // Minimum level to forward to the feed (default: WARN)
}

// NewFeedHandler creates a FeedHandler that wraps the given handler.
// Logs at WARN level and above are written to both the wrapped handler and
// the notification feed.
func NewFeedHandler(inner slog.Handler, feed *notify.Log) *FeedHandler {
	return &FeedHandler{
		inner: inner,
		feed:  feed,
		level: slog.LevelWarn,
	}
}

// Enabled implements slog.Handler.
func (h *FeedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *FeedHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		// Background context so the record lands even when the request
		// context is already cancelled.
		_ = h.feed.Append(context.Background(), notify.TypeSystem, formatMessage(r))
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *FeedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FeedHandler{
		inner: h.inner.WithAttrs(attrs),
		feed:  h.feed,
		level: h.level,
	}
}

// WithGroup implements slog.Handler.
func (h *FeedHandler) WithGroup(name string) slog.Handler {
	return &FeedHandler{
		inner: h.inner.WithGroup(name),
		feed:  h.feed,
		level: h.level,
	}
}

// formatMessage renders a record as a single feed line: the message followed
// by its attributes in key=value form.
func formatMessage(r slog.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Message)

	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(" ")
		sb.WriteString(a.Key)
		sb.WriteString("=")
		sb.WriteString(a.Value.String())
		return true
	})
	return sb.String()
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

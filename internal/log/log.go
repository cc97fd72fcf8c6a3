// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log implements leveled, structured logging carried in a context.
//
// A context without a logger discards everything, so library code can log
// freely and only callers that install a logger see the output.
package log

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/exp/slog"
)

type loggerKey struct{}

// WithLogger returns a context that logs to l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// WithLineLogger returns a context that writes one line per log event
// to w, in key=value form, dropping events below level.
func WithLineLogger(ctx context.Context, w io.Writer, level slog.Level) context.Context {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return WithLogger(ctx, slog.New(h))
}

// FromContext returns the logger installed in ctx, or a logger that
// discards everything.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return discard
}

var discard = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Debug emits one log event at the Debug severity.
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	FromContext(ctx).LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

// Info emits one log event at the Info severity.
func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	FromContext(ctx).LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn emits one log event at the Warning severity.
func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	FromContext(ctx).LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

// Error emits one log event at the Error severity.
func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	FromContext(ctx).LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

// Debugf logs a formatted message at the Debug severity.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	l := FromContext(ctx)
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	l.LogAttrs(ctx, slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at the Info severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	l := FromContext(ctx)
	if !l.Enabled(ctx, slog.LevelInfo) {
		return
	}
	l.LogAttrs(ctx, slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at the Warning severity.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	l := FromContext(ctx)
	if !l.Enabled(ctx, slog.LevelWarn) {
		return
	}
	l.LogAttrs(ctx, slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at the Error severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).LogAttrs(ctx, slog.LevelError, fmt.Sprintf(format, args...))
}

// Package logging provides the structured logger liveslots uses to report
// ProtocolError and InternalInvariant conditions (spec.md §7): conditions
// that are never propagated as Go errors out of dispatch, but must still
// be visible to whoever operates the vat.
//
// Grounded on oriys-nova's internal/logging package, which likewise chose
// stdlib log/slog over a third-party logger -- no teacher-tier repo in the
// retrieval pack imports zap/logrus/zerolog directly, so slog is the
// best-grounded choice here rather than a fallback to "just use stdlib".
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logger used throughout the vat. It is a thin
// wrapper over *slog.Logger so call sites can pass the vref/crank-id/error
// fields the error taxonomy (spec.md §7) requires without each package
// importing log/slog directly.
type Logger struct {
	base *slog.Logger
}

// New constructs a Logger writing JSON records to w (os.Stderr if w is
// nil) at the given level.
func New(w *os.File, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{base: slog.New(h)}
}

// Warn logs a ProtocolError-class condition that is benign: the crank
// continues.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.base.Warn(msg, args...)
}

// Error logs a ProtocolError-class condition that is protocol-breaking,
// or an InternalInvariant violation, before the caller decides whether to
// terminate the vat.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.base.Error(msg, args...)
}

// Info logs ordinary operational detail: crank start/end, GC round
// summaries.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.base.Info(msg, args...)
}

// WithCrank returns a Logger that annotates every record with the given
// crank correlation id (internal/traceid), so log lines from the same
// dispatch call can be grouped.
func (l *Logger) WithCrank(ctx context.Context, crankID string) *Logger {
	return &Logger{base: l.base.With("crank_id", crankID)}
}

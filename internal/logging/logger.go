// Package logging defines the minimal structured-logging interface used by the
// chat core. The concrete implementation wraps slog; components depend only on
// the interface.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// interpreted as key-value pairs:
//
//	log.Info(ctx, "session attached", "conn", conn)
type Logger interface {
	// Debug logs high-volume trace details (per-command, per-commit events).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs notable lifecycle events.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures, including internal invariant violations.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

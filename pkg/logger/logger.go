// Package logger defines the logging interface used across the SDK and the
// handlers that back it. Components never log to a concrete library directly;
// they receive a Logger so applications can plug in their own.
package logger

// Logger accepts a message followed by alternating key/value pairs, in the
// style of log/slog.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

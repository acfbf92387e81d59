// Package log provides the structured logging interface used across glmgo.
//
// The interface is slog-compatible so that callers can plug in any backend.
// The default backend is zerolog (see zerolog.go); SetupLogger configures a
// slog JSON handler for binaries that prefer the standard library handler.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("glm").With(
//	    log.ModelNameKey, "GLM",
//	    log.RunIDKey, log.NewRunID(),
//	)
//	logger.Info("fit started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 1000,
//	    log.FeaturesKey, 12,
//	)
package log

import (
	"context"
)

// Logger is a structured logger with key-value fields.
type Logger interface {
	// Debug logs a debug-level message. Used for per-iteration solver output.
	Debug(msg string, fields ...any)

	// Info logs an info-level message.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error it
	// is attached under ErrAttrKey.
	//
	//   logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
	Error(msg string, fields ...any)

	// With returns a child logger that always includes fields.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at level.
	//
	//   if logger.Enabled(ctx, log.LevelDebug) {
	//       logger.Debug("gradient", "values", grad)
	//   }
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level; values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. Swap it with SetProvider in tests.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for loggers created by this provider.
	SetLevel(level Level)
}

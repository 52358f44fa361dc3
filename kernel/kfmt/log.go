package kfmt

import (
	"context"
	"fmt"
	"log/slog"
)

var (
	// logLevel is the minimum level that reaches the console.
	logLevel = new(slog.LevelVar)

	logger = slog.New(slog.NewTextHandler(sinkWriter{}, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			// The kernel clock is not meaningful in the console log.
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		},
	}))
)

// SetLogLevel sets the minimum level of messages emitted by the leveled log
// functions.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LogLevel returns the active minimum log level.
func LogLevel() slog.Level {
	return logLevel.Level()
}

// ParseLogLevel maps a level name (debug, info, warn, error) to a slog.Level.
// Unknown names map to slog.LevelInfo and ok is set to false.
func ParseLogLevel(name string) (level slog.Level, ok bool) {
	switch name {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Debugf logs a debug message on behalf of module.
func Debugf(module, format string, args ...interface{}) {
	logf(slog.LevelDebug, module, format, args...)
}

// Infof logs an informational message on behalf of module.
func Infof(module, format string, args ...interface{}) {
	logf(slog.LevelInfo, module, format, args...)
}

// Warnf logs a warning on behalf of module.
func Warnf(module, format string, args ...interface{}) {
	logf(slog.LevelWarn, module, format, args...)
}

// Errorf logs an error on behalf of module.
func Errorf(module, format string, args ...interface{}) {
	logf(slog.LevelError, module, format, args...)
}

func logf(level slog.Level, module, format string, args ...interface{}) {
	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}

	logger.Log(ctx, level, fmt.Sprintf(format, args...), slog.String("module", module))
}

package logger

import (
	"log"
	"log/slog"
)

// NewStdLogger returns a standard library Logger that wraps the slog Logger.
// This is useful for integrating with packages that expect a *log.Logger,
// such as the http.Server ErrorLog field.
func NewStdLogger(logger *Logger, level Level) *log.Logger {
	return slog.NewLogLogger(logger.handler, slog.Level(level))
}

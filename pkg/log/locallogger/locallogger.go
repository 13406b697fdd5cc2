// Package locallogger writes netcheck's own diagnostic logs (not observations)
// to a size-rotated file on local disk.
package locallogger

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

type localLogger struct {
	lj      *lumberjack.Logger
	handler slog.Handler
}

// New creates a rotating JSON log at logFilePath. Observation logs are never
// written through here: those are append-only and left to external rotation.
func New(logFilePath string, level slog.Leveler) *localLogger {
	lj := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28,   // days
		Compress:   true, // compress rotated files
	}

	return &localLogger{
		lj: lj, // keep a reference to lumberjack Logger so it can be closed
		handler: slog.NewJSONHandler(lj, &slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		}),
	}
}

// SlogHandler returns the handler to hand to a multislogger.
func (ll *localLogger) SlogHandler() slog.Handler {
	return ll.handler
}

func (ll *localLogger) Close() error {
	return ll.lj.Close()
}

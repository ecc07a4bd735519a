package main

import (
	"log/slog"
	"os"

	"github.com/samcharles93/crucible/internal/logger"
)

// newLogger builds the logger selected by the logging flags. Commands call
// it after config defaults have been applied.
func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Text(os.Stderr, level)
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

// Package telemetry configures the engine's structured logger. Diagnostics
// go to stderr so stdout stays clean for command output.
package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(levelFromEnv())
	return log
}

// NewSilentLogger is for tests and for commands that must not emit logs.
func NewSilentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func levelFromEnv() logrus.Level {
	switch strings.ToLower(os.Getenv("SWAP_LOG_LEVEL")) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

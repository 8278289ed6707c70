package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type LoggerConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds the process logger. JSON output is meant for log aggregation,
// the text formatter for local runs.
func New(config LoggerConfig) *logrus.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(config.Output)

	if strings.EqualFold(config.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if config.Level == "" {
		config.Level = "info"
	}
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithField("level", config.Level).Warn("Unknown log level, falling back to info")
	}
	logger.SetLevel(level)

	return logger
}

// OrStandard returns l, or the logrus standard logger when l is nil.
func OrStandard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

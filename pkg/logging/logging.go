// Package logging builds the logrus loggers used across the registry.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a text logger on stderr at Info level.
func New() *logrus.Logger {
	return NewWithOptions(os.Stderr, logrus.InfoLevel, false)
}

// NewWithOptions returns a logger writing to out. json selects the JSON formatter.
func NewWithOptions(out io.Writer, level logrus.Level, json bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// ParseLevel accepts logrus level names and falls back to Info.
func ParseLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	return NewWithOptions(io.Discard, logrus.PanicLevel, false)
}

// Package relaylog defines the logging interface used across the relay's
// components and a default implementation backed by logrus. The interface
// mirrors the shape the teacher package used for its own peer/transport
// logging, so every component takes a Logger rather than reaching for a
// package-level global.
package relaylog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every relay component depends on.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// ToggleDebug enables or disables debug-level output and returns the
	// new state.
	ToggleDebug(enabled bool) bool

	// WithFields returns a Logger that annotates every subsequent line
	// with the given structured fields, without mutating the receiver.
	WithFields(fields Fields) Logger
}

// Fields is a shorthand for the structured key-value pairs attached to a
// log line.
type Fields map[string]interface{}

// logrusLogger is the default Logger, backed by a *logrus.Entry.
type logrusLogger struct {
	entry *logrus.Entry
}

// New builds the default Logger, writing to stderr with text formatting.
func New() Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) Info(v ...interface{}) { l.entry.Info(v...) }
func (l *logrusLogger) Infof(format string, v ...interface{}) { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(v ...interface{}) { l.entry.Warn(v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{}) { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(v ...interface{}) { l.entry.Error(v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }

func (l *logrusLogger) Debug(v ...interface{}) {
	l.entry.Debug(v...)
}

func (l *logrusLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l *logrusLogger) ToggleDebug(enabled bool) bool {
	logger := l.entry.Logger
	if enabled {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return enabled
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

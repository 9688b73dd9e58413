// Package log defines the driver's logging interface and a logrus-backed
// implementation (the default writes structured text to stderr). The Driver
// facade logs through a Logger; the pool, routing, and connection packages
// take no Logger and do not log.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the surface the Driver facade logs through.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// Noop discards everything. Useful as a zero-value default so callers don't
// need to nil-check before logging.
type Noop struct{}

func (Noop) Debug(args ...interface{})                  {}
func (Noop) Debugf(format string, args ...interface{})  {}
func (Noop) Info(args ...interface{})                   {}
func (Noop) Infof(format string, args ...interface{})   {}
func (Noop) Warn(args ...interface{})                   {}
func (Noop) Warnf(format string, args ...interface{})   {}
func (Noop) Error(args ...interface{})                  {}
func (Noop) Errorf(format string, args ...interface{})  {}
func (Noop) WithField(string, interface{}) Logger       { return Noop{} }
func (Noop) WithFields(map[string]interface{}) Logger   { return Noop{} }
func (Noop) WithError(error) Logger                     { return Noop{} }

type logrusAdapter struct {
	entry *logrus.Entry
}

// New builds a logrus-backed Logger writing level-parsed, text-formatted
// entries to w (os.Stderr if nil). An unrecognized level falls back to Info.
func New(level string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusAdapter) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusAdapter) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) WithField(key string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(key, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

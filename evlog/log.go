// Package evlog is a thin wrapper around logrus, grounded on
// nabbar-golib/logger: callers depend on the small Logger interface below,
// never on logrus types directly, so the backing library can be swapped
// without touching call sites.
package evlog

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every evserve component depends on.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	IsDebug() bool
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New wraps a *logrus.Logger. Pass logrus.StandardLogger() for the default
// global logger.
func New(base *logrus.Logger) Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) IsDebug() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

// Nop is a Logger that discards everything; used as the zero-value default
// so components never need a nil check.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) WithField(string, interface{}) Logger { return Nop }
func (nopLogger) WithError(error) Logger                { return Nop }
func (nopLogger) Debugf(string, ...interface{})         {}
func (nopLogger) Infof(string, ...interface{})          {}
func (nopLogger) Warnf(string, ...interface{})          {}
func (nopLogger) Errorf(string, ...interface{})         {}
func (nopLogger) IsDebug() bool                          { return false }

// Package logrus adapts a logrus entry to imagecache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/imagecache"
)

var _ imagecache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l. A nil l uses the logrus standard logger.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l).WithField("component", "imagecache")}
}

func (l Logger) Debug(msg string, f imagecache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l Logger) Info(msg string, f imagecache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f imagecache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f imagecache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

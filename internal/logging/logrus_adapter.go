package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// logrusAdapter wraps a logrus logger to implement Logger.
type logrusAdapter struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// New creates a new Logger backed by a fresh logrus.Logger at the given
// level. Levels follow the CLI's --log-level enum (critical, error,
// warning, info, debug, trace); unrecognized levels fall back to info.
func New(level string) Logger {
	l := logrus.New()
	l.SetLevel(parseLevel(level))
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusAdapter{logger: l, entry: logrus.NewEntry(l)}
}

// NewFromLogrus adapts an existing *logrus.Logger.
func NewFromLogrus(l *logrus.Logger) Logger {
	return &logrusAdapter{logger: l, entry: logrus.NewEntry(l)}
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "critical":
		return logrus.FatalLevel
	case "error":
		return logrus.ErrorLevel
	case "warning":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel adjusts the level of the underlying logrus logger, used to serve
// POST log-level.
func SetLevel(l Logger, level string) {
	if a, ok := l.(*logrusAdapter); ok {
		a.logger.SetLevel(parseLevel(level))
	}
}

func (l *logrusAdapter) WithField(key string, value interface{}) Logger {
	return &logrusAdapter{logger: l.logger, entry: l.entry.WithField(key, value)}
}

func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{logger: l.logger, entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{logger: l.logger, entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logrusAdapter) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logrusAdapter) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logrusAdapter) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *logrusAdapter) Debugln(args ...interface{}) { l.entry.Debugln(args...) }
func (l *logrusAdapter) Infoln(args ...interface{})  { l.entry.Infoln(args...) }
func (l *logrusAdapter) Warnln(args ...interface{})  { l.entry.Warnln(args...) }
func (l *logrusAdapter) Errorln(args ...interface{}) { l.entry.Errorln(args...) }

func (l *logrusAdapter) Writer() *io.PipeWriter { return l.logger.Writer() }

// Package logging provides the structured logging interface shared by every
// gateway subsystem, so that the router, the catalogue, the download engine
// and each backend supervisor log through one consistent surface.
package logging

import "io"

// Logger is a flexible logging interface, mirroring the subset of logrus
// that the gateway depends on so that call sites never import logrus
// directly.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugln(args ...interface{})
	Infoln(args ...interface{})
	Warnln(args ...interface{})
	Errorln(args ...interface{})

	// Writer returns a pipe writer suitable for merging a child process's
	// stdio into the logger at Info level.
	Writer() *io.PipeWriter
}

package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used by the rvframe packages. Each
// analysis layer gets its own Logger, tagged with a layer field.
type Logger interface {
	// IsDebug reports whether Debugf produces output, the prologue
	// scanner checks it before disassembling instructions for the log.
	IsDebug() bool

	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LoggerFactory builds the Logger of a layer, out can be nil.
type LoggerFactory func(level logrus.Level, fields Fields, out io.Writer) Logger

// Fields are the key=value pairs attached to every line of a Logger.
type Fields map[string]interface{}

// logrusLogger adapts a logrus entry to Logger.
type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) IsDebug() bool {
	return l.Entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

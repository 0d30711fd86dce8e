package logflags

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Flags selects which layers produce debug output and where it goes.
// The zero value disables all logging layers.
type Flags struct {
	Prologue bool // prologue scanner, one line per decoded instruction
	Frame    bool // frame cache and unwinder
	RetVal   bool // return value classification
	Xfer     bool // register transfers
	Symbols  bool // ELF/DWARF symbol provider

	// Out receives log output, os.Stderr when nil.
	Out io.Writer
	// Factory, when set, builds every Logger instead of the default logrus one.
	Factory LoggerFactory

	closer io.Closer
}

// Close closes the log file opened by Setup, if any.
func (f *Flags) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

var textFormatterInstance = &textFormatter{}

func (f *Flags) makeLogger(level logrus.Level, fields Fields) Logger {
	if f.Factory != nil {
		return f.Factory(level, fields, f.Out)
	}
	out := f.Out
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	logger.Logger.Out = out
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func (f *Flags) makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return f.makeLogger(logrus.ErrorLevel, fields)
	}
	return f.makeLogger(logrus.DebugLevel, fields)
}

// PrologueLogger returns a logger for the prologue scanner.
func (f *Flags) PrologueLogger() Logger {
	return f.makeFlaggableLogger(f.Prologue, Fields{"layer": "prologue"})
}

// FrameLogger returns a logger for the frame unwinder.
func (f *Flags) FrameLogger() Logger {
	return f.makeFlaggableLogger(f.Frame, Fields{"layer": "frame"})
}

// RetValLogger returns a logger for the return value marshaller.
func (f *Flags) RetValLogger() Logger {
	return f.makeFlaggableLogger(f.RetVal, Fields{"layer": "retval"})
}

// XferLogger returns a logger for register transfers.
func (f *Flags) XferLogger() Logger {
	return f.makeFlaggableLogger(f.Xfer, Fields{"layer": "xfer"})
}

// SymbolsLogger returns a logger for the symbol provider.
func (f *Flags) SymbolsLogger() Logger {
	return f.makeFlaggableLogger(f.Symbols, Fields{"layer": "symbols"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup parses the comma separated list of layers in logstr and the
// destination logDest (a file path or a file descriptor number) and
// returns the corresponding Flags.
func Setup(logFlag bool, logstr, logDest string) (Flags, error) {
	var f Flags
	if !logFlag {
		if logstr != "" {
			return f, errLogstrWithoutLog
		}
		return f, nil
	}
	if logstr == "" {
		logstr = "frame"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "prologue":
			f.Prologue = true
		case "frame":
			f.Frame = true
		case "retval":
			f.RetVal = true
		case "xfer":
			f.Xfer = true
		case "symbols":
			f.Symbols = true
		case "all":
			f.Prologue, f.Frame, f.RetVal, f.Xfer, f.Symbols = true, true, true, true, true
		default:
			return f, fmt.Errorf("unknown log layer %q", logcmd)
		}
	}
	if logDest != "" {
		out, err := OpenDest(logDest)
		if err != nil {
			return f, err
		}
		f.Out, f.closer = out, out
	}
	return f, nil
}

// OpenDest opens logDest, a file path or a file descriptor number, for
// writing. Closing the result only closes files opened by path.
func OpenDest(logDest string) (io.WriteCloser, error) {
	if fd, err := strconv.Atoi(logDest); err == nil {
		return fdWriter{os.NewFile(uintptr(fd), "rvframe-logs")}, nil
	}
	fh, err := os.Create(logDest)
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %w", err)
	}
	return fh, nil
}

// fdWriter is a log destination given as a file descriptor, it belongs
// to whoever passed it and is not closed.
type fdWriter struct {
	io.Writer
}

func (fdWriter) Close() error { return nil }

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format("2006-01-02T15:04:05Z07:00"))
	b.WriteByte(' ')
	b.WriteString(entry.Level.String())
	b.WriteByte(' ')
	for k, v := range entry.Data {
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

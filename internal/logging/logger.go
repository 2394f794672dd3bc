// Package logging builds the charmbracelet loggers used by the parser and the
// CLI. Level, prefix and destination come from QEMUTRACE_LOG_* variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const (
	envLevel  = "QEMUTRACE_LOG_LEVEL"
	envPrefix = "QEMUTRACE_LOG_PREFIX"
	envToFile = "QEMUTRACE_LOG_TO_FILE"
)

// LoggerCloser is a logger that may own its output file.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the log file, if any.
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Level maps QEMUTRACE_LOG_LEVEL to a log level; unset or unknown is info.
func Level() log.Level {
	switch os.Getenv(envLevel) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter returns a logger writing to w.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           Level(),
	})

	prefix := os.Getenv(envPrefix)
	if prefix == "" {
		prefix = "qemutrace"
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}
	return &LoggerCloser{Logger: lg.WithPrefix(prefix), closer: closer}
}

// NewLogger writes to stderr, or to a timestamped file in the working
// directory when QEMUTRACE_LOG_TO_FILE=1.
func NewLogger() *LoggerCloser {
	out := io.Writer(os.Stderr)
	if os.Getenv(envToFile) == "1" {
		name := fmt.Sprintf("qemutrace-%s.log", time.Now().Format("20060102-150405"))
		// Fall back to stderr when the file cannot be created.
		if f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	return NewLoggerWithWriter(out)
}

// IsDebug reports whether debug logging was requested.
func IsDebug() bool {
	return Level() == log.DebugLevel
}

package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger provides structured logging with redaction support
type Logger struct {
	entry *logrus.Entry
}

// Options controls how a Logger renders its output.
type Options struct {
	Debug   bool
	NoColor bool
	// JSON switches to one JSON object per line, for log shippers.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a new logger instance
func New(debug, noColor bool) *Logger {
	return NewWithOptions(Options{Debug: debug, NoColor: noColor})
}

// NewWithOptions creates a logger from explicit options.
func NewWithOptions(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(newSymbolFormatter(opts.NoColor))
	}

	return &Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWithOptions(Options{NoColor: true, Output: io.Discard})
}

// WithField returns a logger that attaches key=value to every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// symbolFormatter renders entries as "<symbol> message key=value".
type symbolFormatter struct {
	info  *color.Color
	warn  *color.Color
	err   *color.Color
	debug *color.Color
}

func newSymbolFormatter(noColor bool) *symbolFormatter {
	f := &symbolFormatter{
		info:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		err:   color.New(color.FgRed),
		debug: color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{f.info, f.warn, f.err, f.debug} {
			c.DisableColor()
		}
	}
	return f
}

func (f *symbolFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var symbol string
	switch e.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		symbol = f.debug.Sprint("[DEBUG]")
	case logrus.WarnLevel:
		symbol = f.warn.Sprint("⚠")
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		symbol = f.err.Sprint("✗")
	default:
		symbol = f.info.Sprint("✓")
	}

	var b bytes.Buffer
	b.WriteString(symbol)
	b.WriteByte(' ')
	b.WriteString(e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

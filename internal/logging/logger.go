package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Logger writes leveled, human-oriented messages to stderr. Values that must
// never appear in output should be passed as Secret.
type Logger struct {
	debug   bool
	noColor bool
	out     io.Writer

	info  *color.Color
	warn  *color.Color
	error *color.Color
	trace *color.Color
}

// New creates a new logger instance
func New(debug, noColor bool) *Logger {
	l := &Logger{
		debug:   debug,
		noColor: noColor,
		info:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		error:   color.New(color.FgRed, color.Bold),
		trace:   color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{l.info, l.warn, l.error, l.trace} {
			c.DisableColor()
		}
	}
	return l
}

// WithOutput returns a copy of the logger writing to w instead of stderr.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	cp := *l
	cp.out = w
	return &cp
}

// DebugEnabled reports whether Debug messages are emitted.
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

func (l *Logger) writer() io.Writer {
	if l.out != nil {
		return l.out
	}
	return os.Stderr
}

func (l *Logger) emit(c *color.Color, marker, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.writer(), "%s %s\n", c.Sprint(marker), msg)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit(l.info, "✓", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit(l.warn, "⚠", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit(l.error, "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit(l.trace, "[DEBUG]", format, args...)
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

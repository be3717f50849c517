// Package logger provides the leveled logger shared by the lock packages and the CLI.
// Until SetGlobal is called the global logger discards everything, so library use is silent.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Level represents a logging level
type Level int

const (
	// LevelDebug is the most verbose logging level
	LevelDebug Level = iota
	// LevelInfo logs informational messages
	LevelInfo
	// LevelWarn logs warnings
	LevelWarn
	// LevelError logs errors
	LevelError
	// LevelNone disables all logging
	LevelNone
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "NONE"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelNone {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	default:
		return LevelInfo
	}
}

// sink is the destination shared by a logger and every logger derived from it.
type sink struct {
	mu     sync.Mutex
	out    *log.Logger
	closer io.Closer
}

// Logger writes leveled, prefixed lines. Loggers are immutable; WithPrefix
// derives a new one that writes to the same destination.
type Logger struct {
	level  Level
	prefix string
	sink   *sink
}

var (
	disabled = &Logger{level: LevelNone}
	global   atomic.Pointer[Logger]
)

// SetGlobal replaces the logger returned by Global. nil restores the silent default.
func SetGlobal(l *Logger) {
	global.Store(l)
}

// Global returns the process-wide logger.
func Global() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return disabled
}

// New creates a Logger appending to the file at path.
// An empty path or LevelNone yields a logger that writes nothing.
func New(level Level, path string, prefix string) (*Logger, error) {
	if level == LevelNone || path == "" {
		return &Logger{level: LevelNone, prefix: prefix}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		level:  level,
		prefix: prefix,
		sink:   &sink{out: newStdLogger(file), closer: file},
	}, nil
}

// NewWriter creates a Logger writing to w. The caller keeps ownership of w.
func NewWriter(level Level, w io.Writer, prefix string) *Logger {
	if level == LevelNone || w == nil {
		return &Logger{level: LevelNone, prefix: prefix}
	}
	return &Logger{
		level:  level,
		prefix: prefix,
		sink:   &sink{out: newStdLogger(w)},
	}
}

func newStdLogger(w io.Writer) *log.Logger {
	return log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// WithPrefix derives a logger whose lines carry prefix after the parent's, joined by ':'.
func (l *Logger) WithPrefix(prefix string) *Logger {
	if l.prefix != "" {
		prefix = l.prefix + ":" + prefix
	}
	return &Logger{level: l.level, prefix: prefix, sink: l.sink}
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.sink != nil && l.level != LevelNone && level >= l.level
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + ": " + msg
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out.Printf("%-5s %s", level, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.logf(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

// Close closes the log file if New opened one. Derived loggers share the file,
// so closing any of them closes it for all. Calling Close again is a no-op.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.closer == nil {
		return nil
	}
	err := l.sink.closer.Close()
	l.sink.closer = nil
	l.sink.out.SetOutput(io.Discard)
	return err
}

// Package observability defines shared logging and metrics primitives.
package observability

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level orders log severities for filtering.
type Level int

const (
	// LevelDebug enables verbose diagnostics.
	LevelDebug Level = iota
	// LevelInfo enables routine operational messages.
	LevelInfo
	// LevelWarn enables recoverable-problem messages.
	LevelWarn
	// LevelError enables failure messages only.
	LevelError
)

// ParseLevel converts a textual level into a Level, defaulting to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// StdLogger writes level-filtered structured lines to standard error.
type StdLogger struct {
	mu    sync.Mutex
	min   Level
	out   func(string)
	clock func() time.Time
}

// NewStdLogger constructs a stderr logger filtering entries below min.
func NewStdLogger(min Level) *StdLogger {
	return &StdLogger{
		mu:  sync.Mutex{},
		min: min,
		out: func(line string) {
			fmt.Fprintln(os.Stderr, line)
		},
		clock: time.Now,
	}
}

// SetMinLevel adjusts the minimum emitted level at runtime.
func (l *StdLogger) SetMinLevel(min Level) {
	l.mu.Lock()
	l.min = min
	l.mu.Unlock()
}

// Debug logs at debug level.
func (l *StdLogger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, "DEBUG", msg, fields) }

// Info logs at info level.
func (l *StdLogger) Info(msg string, fields ...Field) { l.emit(LevelInfo, "INFO", msg, fields) }

// Warn logs at warn level.
func (l *StdLogger) Warn(msg string, fields ...Field) { l.emit(LevelWarn, "WARN", msg, fields) }

// Error logs at error level.
func (l *StdLogger) Error(msg string, fields ...Field) { l.emit(LevelError, "ERROR", msg, fields) }

func (l *StdLogger) emit(level Level, tag, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(l.clock().UTC().Format(time.RFC3339))
	b.WriteString(" ")
	b.WriteString(tag)
	b.WriteString(" ")
	b.WriteString(msg)
	if len(fields) > 0 {
		pairs := make([]string, 0, len(fields))
		for _, f := range fields {
			key := strings.TrimSpace(f.Key)
			if key == "" {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, f.Value))
		}
		sort.Strings(pairs)
		if len(pairs) > 0 {
			b.WriteString(" ")
			b.WriteString(strings.Join(pairs, " "))
		}
	}
	l.out(b.String())
}

package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel maps a level name to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("invalid log level %q", name)
}

// UnmarshalText lets Level be used directly as an env-parsed config field.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Logger is a simple interface for logging messages.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Notice(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// EmptyLogger discards everything. Used by tests.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Debug(_ string, _ ...interface{})  {}
func (l *EmptyLogger) Info(_ string, _ ...interface{})   {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{}) {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})  {}

// StdLogger writes through the standard log package, prefixing each line
// with its level and an optional component name.
type StdLogger struct {
	level     Level
	component string
	mu        sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(level Level) *StdLogger {
	return &StdLogger{level: level}
}

// Named returns a logger with the same level that tags lines with component.
func (l *StdLogger) Named(component string) *StdLogger {
	return &StdLogger{level: l.level, component: component}
}

func (l *StdLogger) formatMessage(level Level, format string) string {
	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}
	if l.component != "" {
		return levelStr + "[" + l.component + "] " + format
	}
	return levelStr + format
}

func (l *StdLogger) logf(level Level, format string, args ...interface{}) {
	if l.level > level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	log.Printf(l.formatMessage(level, format), args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, format, args...)
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, format, args...)
}

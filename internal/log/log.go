// ABOUTME: Leveled printf logging on slog levels with per-component prefixes
// ABOUTME: Global level via SetLevel; writes to stderr (swappable for tests)

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level constants matching slog levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	level atomic.Int64

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func init() {
	level.Store(int64(LevelInfo))
}

// SetLevel sets the global log level.
func SetLevel(l slog.Level) {
	level.Store(int64(l))
}

// GetLevel returns the current log level.
func GetLevel() slog.Level {
	return slog.Level(level.Load())
}

// SetOutput redirects all log output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := out
	out = w
	return prev
}

func emit(l slog.Level, tag, prefix, format string, args ...any) {
	if l < LevelError && slog.Level(level.Load()) > l {
		return
	}
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(out, "["+tag+"] "+prefix+format+"\n", args...)
}

// Logger writes leveled messages tagged with a component prefix.
// The zero value logs without a prefix.
type Logger struct {
	prefix string

	mu   sync.Mutex
	once map[string]struct{}
}

// New returns a Logger whose lines start with "[component] ".
func New(component string) *Logger {
	p := ""
	if component != "" {
		p = "[" + component + "] "
	}
	return &Logger{prefix: p}
}

// Debug logs a debug message if the level allows it.
func (l *Logger) Debug(format string, args ...any) {
	emit(LevelDebug, "DEBUG", l.prefix, format, args...)
}

// Info logs an info message if the level allows it.
func (l *Logger) Info(format string, args ...any) {
	emit(LevelInfo, "INFO", l.prefix, format, args...)
}

// Warn logs a warning message if the level allows it.
func (l *Logger) Warn(format string, args ...any) {
	emit(LevelWarn, "WARN", l.prefix, format, args...)
}

// Error logs an error message (always emitted).
func (l *Logger) Error(format string, args ...any) {
	emit(LevelError, "ERROR", l.prefix, format, args...)
}

// WarnOnce logs a warning the first time key is seen by this Logger.
// Returns true if the warning was emitted.
func (l *Logger) WarnOnce(key, format string, args ...any) bool {
	l.mu.Lock()
	if l.once == nil {
		l.once = make(map[string]struct{})
	}
	if _, seen := l.once[key]; seen {
		l.mu.Unlock()
		return false
	}
	l.once[key] = struct{}{}
	l.mu.Unlock()

	l.Warn(format, args...)
	return true
}

var std = &Logger{}

// Debug logs a debug message on the default logger.
func Debug(format string, args ...any) { std.Debug(format, args...) }

// Info logs an info message on the default logger.
func Info(format string, args ...any) { std.Info(format, args...) }

// Warn logs a warning on the default logger.
func Warn(format string, args ...any) { std.Warn(format, args...) }

// Error logs an error on the default logger.
func Error(format string, args ...any) { std.Error(format, args...) }

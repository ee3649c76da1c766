// Package log provides a levelled logger. A process-wide default Logger backs the package-level
// functions, which are intended for development builds and command-line tools; library code should
// accept a *Logger (or an interface it satisfies) instead.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anamolies that are not expected to occur during normal use.
	LevelWarning              // Logs anamolies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug:   zerolog.DebugLevel,
	LevelInfo:    zerolog.InfoLevel,
	LevelWarning: zerolog.WarnLevel,
	LevelError:   zerolog.ErrorLevel,
}

// Logger writes printf-style messages at or below its configured Level.
type Logger struct {
	mu    sync.Mutex
	level Level
	sink  zerolog.Logger
}

// New returns a Logger that writes human-readable lines to w.
func New(w io.Writer, level Level) *Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return &Logger{
		level: level,
		sink:  zerolog.New(console).With().Timestamp().Logger(),
	}
}

// Discard returns a Logger that never writes anything.
func Discard() *Logger {
	return &Logger{level: LevelNone, sink: zerolog.Nop()}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Enabled returns true if messages at level will be written.
func (l *Logger) Enabled(level Level) bool {
	return level != LevelNone && level <= l.Level()
}

func (l *Logger) log(level Level, format string, a ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.sink.WithLevel(zerologLevels[level]).Msg(fmt.Sprintf(format, a...))
}

func (l *Logger) Debug(format string, a ...interface{}) {
	l.log(LevelDebug, format, a...)
}

func (l *Logger) Info(format string, a ...interface{}) {
	l.log(LevelInfo, format, a...)
}

func (l *Logger) Warning(format string, a ...interface{}) {
	l.log(LevelWarning, format, a...)
}

func (l *Logger) Error(format string, a ...interface{}) {
	l.log(LevelError, format, a...)
}

var std = New(os.Stderr, LevelNone)

// Default returns the Logger used by the package-level functions.
func Default() *Logger {
	return std
}

func SetLevel(level Level) {
	std.SetLevel(level)
}

func Debug(format string, a ...interface{}) {
	std.Debug(format, a...)
}
func Info(format string, a ...interface{}) {
	std.Info(format, a...)
}
func Warning(format string, a ...interface{}) {
	std.Warning(format, a...)
}
func Error(format string, a ...interface{}) {
	std.Error(format, a...)
}

// Package logger wraps zerolog.Logger with the constructors used by the
// ciphora services and command line.
//
// Secrets, keys and record payloads must never be passed to a logger; log
// record ids, counts and outcomes only.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// NewLogger constructs a JSON logger on stderr tagged with role
// (e.g. "auth", "cli").
func NewLogger(role string) *Logger {
	return newLogger(os.Stderr, role)
}

// NewFileLogger appends JSON log lines to the file at path, creating it and
// its directory if needed. Stdout stays clean for command output.
func NewFileLogger(role, path string) (*Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return newLogger(f, role), f, nil
}

func newLogger(w io.Writer, role string) *Logger {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return runtime.FuncForPC(pc).Name()
	}
	zerolog.CallerFieldName = "func"

	l := zerolog.New(w).With().
		Str("role", role).
		Timestamp().
		Caller().
		Logger()

	return &Logger{l}
}

// Nop returns a *Logger that discards all output.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// WithLevel returns a copy of the logger filtered at the named level
// ("debug", "info", "warn", ...). Unknown names leave the level unchanged.
func (l *Logger) WithLevel(name string) *Logger {
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return l
	}
	return &Logger{l.Level(level)}
}

// Component returns a child logger with a component field.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With().Str("component", name).Logger()}
}

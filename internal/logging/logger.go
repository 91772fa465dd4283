// Package logging builds the zerolog loggers used by nookfb.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const timeFormat = "15:04:05"

// New returns a console-formatted logger writing to w at the given level.
func New(w io.Writer, level string, verbose bool) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		NoColor:    w != os.Stderr && w != os.Stdout,
	}).Level(ParseLevel(level, verbose)).With().Timestamp().Logger()
}

// NewFile returns a logger appending to path, creating parent directories
// as needed. The caller closes the returned file.
func NewFile(path, level string, verbose bool) (zerolog.Logger, io.Closer, error) {
	if path == "" {
		return zerolog.Nop(), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, level, verbose), f, nil
}

// ParseLevel maps a config level name to a zerolog level. verbose forces
// debug output.
func ParseLevel(level string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

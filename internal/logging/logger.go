// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level and an optional console mirror.
type Config struct {
	Level string // debug, info, warn, error
	// Console mirrors records to stderr in human-readable form.
	Console bool
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger zerolog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// WithComponent returns a child logger tagged with component.
func (r Runtime) WithComponent(component string) zerolog.Logger {
	return r.Logger.With().Str("component", component).Logger()
}

// New builds a JSONL logger rooted at the resolved state path.
func New(cfg Config) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	var out io.Writer = f
	if cfg.Console {
		out = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "rehearse").
		Logger()
	return Runtime{Logger: logger, Path: path, closer: f}, nil
}

// ParseLevel maps a config level name to zerolog, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "rehearse", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "rehearse", "log.jsonl"), nil
}

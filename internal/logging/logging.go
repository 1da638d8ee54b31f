// Package logging configures zerolog for the CLI and opens the per-day
// user-action log under the data directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger on w at the given level ("debug", "info", ...).
// Unknown levels fall back to info.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

// ActionLogName returns the file name of the action log for day t.
func ActionLogName(t time.Time) string {
	return fmt.Sprintf("user_actions_%s.log", t.Format("20060102"))
}

// OpenActionLog opens (appending) today's user-action log in dir.
// Entries are JSON lines; the caller closes the returned io.Closer.
func OpenActionLog(dir string, now time.Time) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, ActionLogName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open action log: %w", err)
	}
	return zerolog.New(f).With().Timestamp().Logger(), f, nil
}

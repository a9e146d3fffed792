// Package logging builds the logrus logger handed to every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a text logger at level. An empty path discards output, which
// is what the TUI wants when no log file is configured since it owns the
// terminal. The returned closer releases the file.
func New(level, path string) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	path = strings.TrimSpace(path)
	if path == "" {
		log.SetOutput(io.Discard)
		return log, nopCloser{}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(file)
	return log, file, nil
}

// Stderr is the logger for processes that do not own the terminal.
func Stderr(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)
	if parsed, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		log.SetLevel(parsed)
	}
	return log
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

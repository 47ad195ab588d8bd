package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

type Options struct {
	// File, when set, receives the log instead of stderr.
	File    string
	Verbose bool
	Testing bool
	// Stderr overrides os.Stderr; used by tests.
	Stderr io.Writer
}

// New builds the process logger. The returned closer releases the log file
// and is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	closer := io.Closer(nopCloser{})

	if opts.File != "" {
		dir := filepath.Dir(opts.File)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		handler = slog.NewTextHandler(f, &slog.HandlerOptions{Level: level, AddSource: opts.Verbose})
		closer = f
	} else {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    w != os.Stderr,
		})
	}

	logger := slog.New(handler).With(slog.String("service", "winwatch"))
	if opts.Testing {
		logger = logger.With(slog.Bool("testing", true))
	}
	return logger, closer, nil
}

// Component returns a child logger tagged with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String("component", name))
}

// Discard is a logger for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

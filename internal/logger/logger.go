package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirrors the logging section of the config
type Options struct {
	Level      string
	Dir        string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New creates a JSON slog.Logger writing to stdout and a rotated file.
// The returned closer flushes the file; it is a no-op when only stderr is used.
func New(opts Options) (*slog.Logger, io.Closer) {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil || opts.File == "" {
		// Fallback to stderr if the log directory is unusable
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nopCloser{}
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, opts.File),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	// Multi-writer: Log to both file and stdout
	writer := io.MultiWriter(os.Stdout, fileLogger)

	return slog.New(slog.NewJSONHandler(writer, handlerOpts)), fileLogger
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

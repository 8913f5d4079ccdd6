package ui

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the process logger.
type LogOptions struct {
	Level slog.Level
	// Stderr receives human-oriented output; text when it is a terminal,
	// JSON otherwise.
	Stderr *os.File
	// File, when set, receives JSON records through a rotating writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the process logger. The returned closer flushes and
// closes the log file, if any.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}

	var console slog.Handler
	if Inspect(stderr).TTY {
		console = slog.NewTextHandler(stderr, hopts)
	} else {
		console = slog.NewJSONHandler(stderr, hopts)
	}

	if opts.File == "" {
		return slog.New(console), nopCloser{}
	}

	rotator := NewRotatingWriter(opts)
	fileH := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewMultiHandler(console, fileH)), rotator
}

// NewRotatingWriter returns a size-rotated writer for opts.File.
func NewRotatingWriter(opts LogOptions) *lumberjack.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}
}

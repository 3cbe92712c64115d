// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ibeckermayer/threadcrawl/internal/config"
)

const logFileName = "threadcrawl.log"

// New returns a logger writing to the console and to a rotating file under dir.
// The returned closer flushes and closes the file sink.
func New(cfg config.LoggingConfig, dir string, verbose bool) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zerolog.Nop(), nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(io.MultiWriter(console, file)).
		Level(Level(cfg.Level, verbose)).
		With().
		Timestamp().
		Logger()

	return logger, file, nil
}

// Level resolves the configured level name. verbose always wins and selects debug.
func Level(name string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

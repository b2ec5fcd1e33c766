// Package logging builds the component loggers used across the service.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"dynamic-pricing-ledger/internal/config"
)

// Flags are the log flags used by every component logger.
const Flags = log.LstdFlags | log.Lshortfile

// Output returns the log destination. With a file configured, lines go to
// stdout and to a size-rotated file.
func Output(cfg config.LoggingConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// New returns a logger writing to out with a "[component] " prefix.
func New(out io.Writer, component string) *log.Logger {
	return log.New(out, "["+component+"] ", Flags)
}

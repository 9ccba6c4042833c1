package config

import (
	"github.com/pkg/errors"

	"go.viam.com/markercam/logging"
)

// Rotation defaults of the log file.
const (
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
)

// LogConfig configures the application logger.
type LogConfig struct {
	Level logging.Level `json:"level"`
	// File, when set, receives the log in addition to stdout and is rotated by size.
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (lc *LogConfig) Validate(path string) error {
	if lc.MaxSizeMB < 0 {
		return errors.Errorf("%s: max_size_mb cannot be negative, got %d", path, lc.MaxSizeMB)
	}
	if lc.MaxBackups < 0 {
		return errors.Errorf("%s: max_backups cannot be negative, got %d", path, lc.MaxBackups)
	}
	return nil
}

// NewLogger returns the logger described by the config and a function closing its log file.
// debug forces the debug level.
func (lc *LogConfig) NewLogger(name string, debug bool) (logging.Logger, func() error) {
	logger := logging.NewLogger(name)
	level := lc.Level
	if debug {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	if lc.File == "" {
		return logger, func() error { return nil }
	}

	maxSize, maxBackups := lc.MaxSizeMB, lc.MaxBackups
	if maxSize == 0 {
		maxSize = DefaultLogMaxSizeMB
	}
	if maxBackups == 0 {
		maxBackups = DefaultLogMaxBackups
	}
	appender := logging.NewFileAppender(lc.File, maxSize, maxBackups)
	logger.AddAppender(appender)
	return logger, appender.Close
}

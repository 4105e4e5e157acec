package dcp

import (
	"avaneesh/dcp-go/pkg/internal/logger"
)

// Logger is the logging interface used by channels, masters and slaves
type Logger = logger.Logger

// LogFileOptions configures rotating log file output
type LogFileOptions = logger.FileOptions

// LogLevel represents logging level
type LogLevel = logger.Level

// Log levels
const (
	LevelDebug = logger.LevelDebug
	LevelInfo  = logger.LevelInfo
	LevelWarn  = logger.LevelWarn
	LevelError = logger.LevelError
)

// ParseLogLevel converts "debug", "info", "warn" or "error" to a LogLevel
func ParseLogLevel(s string) (LogLevel, bool) {
	return logger.ParseLevel(s)
}

// SetLogLevel replaces the default logger with one writing to stdout at level
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(level))
}

// SetLogFile replaces the default logger with one also writing to a rotating file
func SetLogFile(level LogLevel, opts LogFileOptions) {
	logger.SetDefault(logger.NewFileLogger(level, opts))
}

// EnableFrameDebug enables hex dumps of every frame sent and received
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}

// DefaultLogger returns the logger used when none is given
func DefaultLogger() Logger {
	return logger.GetDefault()
}

// NoOpLogger returns a logger that discards everything
func NoOpLogger() Logger {
	return logger.NewNoOpLogger()
}

package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	Logger *log.Logger
	mu     sync.Mutex
)

// Initialize sets up the global logger with Charm's log library
func Initialize(logLevel string) {
	InitializeWithOutput(logLevel, os.Stderr)
}

// InitializeWithOutput sets up the global logger writing to w
func InitializeWithOutput(logLevel string, w io.Writer) {
	l := log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(logLevel),
		ReportCaller:    true,
		ReportTimestamp: true,
	})

	mu.Lock()
	Logger = l
	mu.Unlock()

	l.Debug("Logger initialized", "level", l.GetLevel())
}

// ParseLevel maps a level name to a log level, defaulting to info
func ParseLevel(logLevel string) log.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *log.Logger {
	mu.Lock()
	l := Logger
	mu.Unlock()
	if l == nil {
		Initialize("info")
		return Get()
	}
	return l
}

// WithContext creates a new logger with additional context fields
func WithContext(fields ...any) *log.Logger {
	return Get().With(fields...)
}

// Service creates a logger for a specific service
func Service(serviceName string) *log.Logger {
	return WithContext("service", serviceName)
}

// Database creates a logger for database operations
func Database() *log.Logger {
	return WithContext("component", "database")
}

// Migration creates a logger for migration operations
func Migration() *log.Logger {
	return WithContext("component", "migration")
}

// Repository creates a logger for repository operations
func Repository(repoName string) *log.Logger {
	return WithContext("component", "repository", "repository", repoName)
}

// Command creates a logger for a cmd entry point
func Command(name string) *log.Logger {
	return WithContext("component", "cmd", "cmd", name)
}

package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------

// Log levels in increasing severity.
const (
	levelDebug = iota
	levelInfo
	levelWarning
	levelError
)

// -----------------------------------------------------------------------------

// Logger provides named, leveled, printf-style logging.
type Logger struct {
	name     string
	logger   *log.Logger
	minLevel int
}

// -----------------------------------------------------------------------------

// NewLogger creates a Logger. level is one of DEBUG/INFO/WARNING/ERROR; an
// empty or unknown level defaults to INFO.
func NewLogger(level string, name string) *Logger {
	return &Logger{
		name:     name,
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		minLevel: parseLevel(level),
	}
}

// -----------------------------------------------------------------------------

func parseLevel(level string) int {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return levelDebug
	case "WARNING":
		return levelWarning
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing the level, with a new component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, logger: l.logger, minLevel: l.minLevel}
}

// -----------------------------------------------------------------------------

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.minLevel > levelDebug {
		return
	}
	l.logger.Printf("[%s] DEBUG: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

func (l *Logger) Info(format string, args ...interface{}) {
	if l.minLevel > levelInfo {
		return
	}
	l.logger.Printf("[%s] INFO: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

func (l *Logger) Warning(format string, args ...interface{}) {
	if l.minLevel > levelWarning {
		return
	}
	l.logger.Printf("[%s] WARNING: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Printf("[%s] ERROR: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs a fatal error and exits the application.
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.Printf("[%s] CRITICAL: %s", l.name, fmt.Sprintf(format, args...))
	os.Exit(1)
}

package logging

import (
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DevMode indicates if development logging is enabled
	DevMode = os.Getenv("DEV_MODE") == "1"
	// Logger is the shared logger instance
	Logger *log.Logger
)

func init() {
	Logger = log.New(os.Stderr, "forge ", log.LstdFlags)
}

// Setup routes the shared logger into a rotating log file so agent noise
// stays out of the terminal. Returns the logger for callers that keep a
// reference.
func Setup(path string) *log.Logger {
	if path == "" {
		return Logger
	}
	Logger = log.New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}, "forge ", log.LstdFlags|log.Lmicroseconds)
	return Logger
}

// DevLog logs diagnostic detail, only when DEV_MODE=1.
func DevLog(l *log.Logger, format string, args ...interface{}) {
	if !DevMode {
		return
	}
	if l == nil {
		l = Logger
	}
	l.Printf("[DEV] "+format, args...)
}

// ErrorLog logs errors (always visible)
func ErrorLog(l *log.Logger, format string, args ...interface{}) {
	if l == nil {
		l = Logger
	}
	l.Printf("[ERROR] "+format, args...)
}

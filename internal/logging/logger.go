// Package logging provides unified logging infrastructure for the installer
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the active log file inside the log directory.
const LogFileName = "crystal-setup.log"

var (
	logger = newLogger()

	mu      sync.Mutex
	once    sync.Once
	file    *lumberjack.Logger
	console = true
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	if os.Getenv("DEBUG") == "true" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Initialize adds a rotating log file in logDir next to stderr.
func Initialize(logDir string) error {
	var initErr error
	once.Do(func() {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}

		mu.Lock()
		file = &lumberjack.Logger{
			Filename:   filepath.ToSlash(filepath.Join(logDir, LogFileName)),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		applyOutput()
		mu.Unlock()

		// Route anything still using the stdlib logger through logrus.
		log.SetOutput(logger.WriterLevel(logrus.InfoLevel))
		log.SetFlags(0)

		logger.Infof("Logging initialized: %s", file.Filename)
	})
	return initErr
}

// SetConsole toggles the console writer. The TUI turns it off while it owns the terminal.
func SetConsole(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	console = enabled
	applyOutput()
}

// SetOutput replaces every writer with w. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func applyOutput() {
	switch {
	case file != nil && console:
		logger.SetOutput(io.MultiWriter(os.Stderr, file))
	case file != nil:
		logger.SetOutput(file)
	case console:
		logger.SetOutput(os.Stderr)
	default:
		logger.SetOutput(io.Discard)
	}
}

// Close closes the log file
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return file.Close()
	}
	return nil
}

// WithField returns an entry carrying one structured field.
func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

// Println logs a message with newline
func Println(v ...interface{}) {
	logger.Infoln(v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}

// Warning logs a warning message
func Warning(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

// Debug logs a debug message, only emitted with DEBUG=true
func Debug(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

// RotateLogs closes the current file, renames it with a timestamp and opens a fresh one
func RotateLogs() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return fmt.Errorf("logger not initialized")
	}
	if err := file.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "OLLECTOR_LOG_LEVEL"

var (
	mu sync.Mutex

	// Logger is the global logger instance.
	Logger *log.Logger

	// file is the open log file, if any.
	file *os.File
)

func init() {
	Logger = newLogger(os.Stderr, log.InfoLevel)
}

func newLogger(w io.Writer, level log.Level) *log.Logger {
	l := log.New(w)
	l.SetTimeFormat("")
	l.SetLevel(level)
	return l
}

// Configure sets the level and destination of the global logger.
// Level precedence: argument > OLLECTOR_LOG_LEVEL > info. An empty logFile
// keeps logging on stderr.
func Configure(level string, logFile string) error {
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}

	var output io.Writer = os.Stderr
	var f *os.File
	if logFile != "" {
		var err error
		f, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		output = f
	}

	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
	}
	file = f
	Logger = newLogger(output, ParseLevel(level))
	if f != nil {
		// Files get timestamps; a terminal session does not need them.
		Logger.SetReportTimestamp(true)
		Logger.SetTimeFormat("2006-01-02 15:04:05")
	}
	return nil
}

// SetOutput redirects the global logger, used by the TUI and by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	Logger.SetOutput(w)
}

// Close releases the log file opened by Configure.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	Logger = newLogger(os.Stderr, Logger.GetLevel())
	return err
}

// ParseLevel converts a level name to a log.Level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
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

// With returns a child of the global logger with the given prefix.
func With(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return Logger.WithPrefix(prefix)
}

// OrDefault returns l, or a prefixed global logger when l is nil.
func OrDefault(l *log.Logger, prefix string) *log.Logger {
	if l != nil {
		return l
	}
	return With(prefix)
}

// Discard returns a logger that writes nothing.
func Discard() *log.Logger {
	return newLogger(io.Discard, log.FatalLevel)
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

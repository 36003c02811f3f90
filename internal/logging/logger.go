/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package logging

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"
)

// init configures pterm styles to use foreground colors only (no backgrounds)
func init() {
	pterm.Info = *pterm.Info.WithPrefix(pterm.Prefix{
		Text:  "INFO",
		Style: pterm.NewStyle(pterm.FgBlue),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Warning = *pterm.Warning.WithPrefix(pterm.Prefix{
		Text:  "WARNING",
		Style: pterm.NewStyle(pterm.FgYellow),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Error = *pterm.Error.WithPrefix(pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.FgRed),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)

	pterm.Debug = *pterm.Debug.WithPrefix(pterm.Prefix{
		Text:  "DEBUG",
		Style: pterm.NewStyle(pterm.FgCyan),
	}).WithMessageStyle(&pterm.ThemeDefault.DefaultText)
}

// Logger is the narrow sink the reload engine logs through. Production code
// uses the pterm-backed global logger; tests substitute a recording logger.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
}

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PtermLogger writes leveled, colorized output through pterm.
type PtermLogger struct {
	mu           sync.RWMutex
	debugEnabled bool
	quietEnabled bool
}

// Global logger instance
var globalLogger = &PtermLogger{}

// GetLogger returns the global logger instance
func GetLogger() *PtermLogger {
	return globalLogger
}

// SetDebugEnabled controls whether debug messages are shown
func (l *PtermLogger) SetDebugEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugEnabled = enabled
}

// IsDebugEnabled returns whether debug logging is enabled
func (l *PtermLogger) IsDebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.debugEnabled
}

// SetQuietEnabled controls whether quiet mode is active (suppresses INFO and DEBUG)
func (l *PtermLogger) SetQuietEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quietEnabled = enabled
}

// Debug logs a debug message (only shown if debug is enabled)
func (l *PtermLogger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, format, args...)
}

// Info logs an informational message
func (l *PtermLogger) Info(format string, args ...any) {
	l.log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *PtermLogger) Warning(format string, args ...any) {
	l.log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *PtermLogger) Error(format string, args ...any) {
	l.log(LogLevelError, format, args...)
}

func (l *PtermLogger) log(level LogLevel, format string, args ...any) {
	l.mu.RLock()
	debugEnabled := l.debugEnabled
	quietEnabled := l.quietEnabled
	l.mu.RUnlock()

	if level == LogLevelDebug && !debugEnabled {
		return
	}
	if quietEnabled && level < LogLevelWarning {
		return
	}

	message := fmt.Sprintf(format, args...)

	switch level {
	case LogLevelDebug:
		pterm.Debug.Println(message)
	case LogLevelInfo:
		pterm.Info.Println(message)
	case LogLevelWarning:
		pterm.Warning.Println(message)
	case LogLevelError:
		pterm.Error.Println(message)
	}
}

// Convenience functions that use the global logger

// Debug logs a debug message using the global logger
func Debug(format string, args ...any) {
	globalLogger.Debug(format, args...)
}

// Info logs an info message using the global logger
func Info(format string, args ...any) {
	globalLogger.Info(format, args...)
}

// Warning logs a warning message using the global logger
func Warning(format string, args ...any) {
	globalLogger.Warning(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...any) {
	globalLogger.Error(format, args...)
}

// Nop is a Logger that discards everything. Useful as a default in
// constructors that accept a nil logger.
type Nop struct{}

func (Nop) Debug(string, ...any)   {}
func (Nop) Info(string, ...any)    {}
func (Nop) Warning(string, ...any) {}
func (Nop) Error(string, ...any)   {}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

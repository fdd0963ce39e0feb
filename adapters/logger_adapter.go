package adapters

import "strings"

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelNone  LogLevel = "NONE"
)

var logLevelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelNone:  4,
}

// ParseLogLevel maps a case-insensitive name to a LogLevel.
// Unknown names fall back to LogLevelWarn.
func ParseLogLevel(name string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := logLevelRank[level]; ok {
		return level
	}
	return LogLevelWarn
}

// enabled reports whether a message at level passes a threshold.
func enabled(threshold, level LogLevel) bool {
	return logLevelRank[level] >= logLevelRank[threshold]
}

// LoggerAdapter is an interface for logging.
// Implement this interface to use custom loggers.
// Messages use fmt.Printf verbs; args fill them in order.
type LoggerAdapter interface {
	// Debug logs a debug message
	Debug(message string, args ...interface{})
	// Info logs an info message
	Info(message string, args ...interface{})
	// Warn logs a warning message
	Warn(message string, args ...interface{})
	// Error logs an error message
	Error(message string, args ...interface{})
}

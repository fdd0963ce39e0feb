package adapters

import (
	"fmt"
	"io"
	"log/slog"
)

// SlogLoggerAdapter implements LoggerAdapter on top of log/slog so records
// can be emitted as structured JSON.
type SlogLoggerAdapter struct {
	logger *slog.Logger
}

// Ensure SlogLoggerAdapter implements LoggerAdapter interface
var _ LoggerAdapter = (*SlogLoggerAdapter)(nil)

// NewSlogLoggerAdapter wraps an existing slog.Logger.
func NewSlogLoggerAdapter(logger *slog.Logger) *SlogLoggerAdapter {
	return &SlogLoggerAdapter{logger: logger.With(slog.String("component", "beacon"))}
}

// NewJSONLoggerAdapter writes JSON records to w at or above level.
func NewJSONLoggerAdapter(w io.Writer, level LogLevel) *SlogLoggerAdapter {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	return NewSlogLoggerAdapter(slog.New(handler))
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelError:
		return slog.LevelError
	case LogLevelNone:
		return slog.LevelError + 4
	default:
		return slog.LevelWarn
	}
}

func (s *SlogLoggerAdapter) Debug(message string, args ...interface{}) {
	s.logger.Debug(fmt.Sprintf(message, args...))
}

func (s *SlogLoggerAdapter) Info(message string, args ...interface{}) {
	s.logger.Info(fmt.Sprintf(message, args...))
}

func (s *SlogLoggerAdapter) Warn(message string, args ...interface{}) {
	s.logger.Warn(fmt.Sprintf(message, args...))
}

func (s *SlogLoggerAdapter) Error(message string, args ...interface{}) {
	s.logger.Error(fmt.Sprintf(message, args...))
}

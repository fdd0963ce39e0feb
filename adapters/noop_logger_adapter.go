package adapters

// NoOpLoggerAdapter discards every message.
type NoOpLoggerAdapter struct{}

var _ LoggerAdapter = NoOpLoggerAdapter{}

// NewNoOpLoggerAdapter creates a new no-op logger
func NewNoOpLoggerAdapter() NoOpLoggerAdapter {
	return NoOpLoggerAdapter{}
}

func (NoOpLoggerAdapter) Debug(string, ...any) {}
func (NoOpLoggerAdapter) Info(string, ...any)  {}
func (NoOpLoggerAdapter) Warn(string, ...any)  {}
func (NoOpLoggerAdapter) Error(string, ...any) {}

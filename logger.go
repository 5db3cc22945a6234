package rawsocket

import (
	"encoding/hex"
	"log/slog"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// tracer writes the debug-mode trace of a connection. Every method is a no-op
// unless debug is enabled on the factory.
type tracer struct {
	logger  Logger
	enabled bool
	id      string
}

func (t tracer) event(msg string, args ...any) {
	if !t.enabled {
		return
	}
	t.logger.Debug(msg, append([]any{"id", t.id}, args...)...)
}

// octets dumps a frame payload as hex. direction is "rx" or "tx".
func (t tracer) octets(direction string, payload []byte) {
	if !t.enabled {
		return
	}
	t.logger.Debug(direction+" octets", "id", t.id, "len", len(payload), "hex", hex.EncodeToString(payload))
}

func (t tracer) message(direction string, msg Message) {
	if !t.enabled {
		return
	}
	t.logger.Debug(direction+" message", "id", t.id, "message", msg)
}

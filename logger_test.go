package rawsocket

import (
	"log/slog"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// mockLogger records entries; connections log from several goroutines.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *mockLogger) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

func (l *mockLogger) hasDebug(msg string) bool {
	for _, e := range l.snapshot() {
		if e.level == "debug" && e.msg == msg {
			return true
		}
	}
	return false
}

// hasArg reports whether any entry carries the key-value pair.
func (l *mockLogger) hasArg(key string, value any) bool {
	for _, e := range l.snapshot() {
		for i := 0; i+1 < len(e.args); i += 2 {
			if e.args[i] == key && e.args[i+1] == value {
				return true
			}
		}
	}
	return false
}

func TestLogger_CustomImplementation(t *testing.T) {
	mock := &mockLogger{}
	var logger Logger = mock

	logger.Debug("test debug", "key1", "value1")
	logger.Info("test info")
	logger.Warn("test warn")
	logger.Error("test error", "key2", 2)

	entries := mock.snapshot()
	if len(entries) != 4 {
		t.Fatalf("recorded %d entries, want 4", len(entries))
	}

	want := []string{"debug", "info", "warn", "error"}
	for i, e := range entries {
		if e.level != want[i] {
			t.Errorf("entry %d level = %s, want %s", i, e.level, want[i])
		}
	}
	if !mock.hasArg("key2", 2) {
		t.Error("args not recorded")
	}
}

func TestTracer_Disabled(t *testing.T) {
	mock := &mockLogger{}
	tr := tracer{logger: mock, id: "c1"}

	tr.event("something")
	tr.octets("rx", []byte{1, 2})
	tr.message("tx", "hello")

	if n := len(mock.snapshot()); n != 0 {
		t.Errorf("disabled tracer logged %d entries", n)
	}
}

func TestTracer_Enabled(t *testing.T) {
	mock := &mockLogger{}
	tr := tracer{logger: mock, enabled: true, id: "c1"}

	tr.event("state changed", "state", "open")
	tr.octets("rx", []byte{0xde, 0xad})
	tr.message("tx", "hello")

	entries := mock.snapshot()
	if len(entries) != 3 {
		t.Fatalf("recorded %d entries, want 3", len(entries))
	}

	tests := []struct {
		msg   string
		key   string
		value any
	}{
		{msg: "state changed", key: "state", value: "open"},
		{msg: "rx octets", key: "hex", value: "dead"},
		{msg: "tx message", key: "message", value: "hello"},
	}

	for i, tt := range tests {
		e := entries[i]
		if e.msg != tt.msg || e.level != "debug" {
			t.Errorf("entry %d = %s %q, want debug %q", i, e.level, e.msg, tt.msg)
		}
		if len(e.args) < 2 || e.args[0] != "id" || e.args[1] != "c1" {
			t.Errorf("entry %d does not start with the connection id: %v", i, e.args)
		}
	}

	for _, tt := range tests {
		if !mock.hasArg(tt.key, tt.value) {
			t.Errorf("missing %s=%v", tt.key, tt.value)
		}
	}
	if !mock.hasArg("len", 2) {
		t.Error("octets length not logged")
	}
}

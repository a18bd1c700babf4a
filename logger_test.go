package netkit

import (
	"log/slog"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
	var _ Logger = hclog.NewNullLogger()
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

// mockLogger records the last call made to it.
type mockLogger struct {
	lastLevel string
	lastMsg   string
	lastArgs  []any
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.lastLevel = level
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func TestWithFields(t *testing.T) {
	mock := &mockLogger{}
	logger := withFields(mock, "conn_id", uint32(7))

	logger.Warn("slow peer", "lag", 3)

	if mock.lastLevel != "warn" || mock.lastMsg != "slow peer" {
		t.Fatalf("got %s %q", mock.lastLevel, mock.lastMsg)
	}
	want := []any{"conn_id", uint32(7), "lag", 3}
	if len(mock.lastArgs) != len(want) {
		t.Fatalf("args = %v, want %v", mock.lastArgs, want)
	}
	for i := range want {
		if mock.lastArgs[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, mock.lastArgs[i], want[i])
		}
	}
}

func TestWithFields_Nested(t *testing.T) {
	mock := &mockLogger{}
	inner := withFields(mock, "a", 1)
	outer := withFields(inner, "b", 2)

	if fl, ok := outer.(*fieldLogger); !ok || fl.l != mock {
		t.Fatal("nested field loggers should wrap the base logger directly")
	}

	outer.Debug("x")
	if len(mock.lastArgs) != 4 {
		t.Fatalf("args = %v, want 4 values", mock.lastArgs)
	}

	inner.Error("y")
	if len(mock.lastArgs) != 2 {
		t.Errorf("inner logger picked up outer fields: %v", mock.lastArgs)
	}
}

func TestWithFields_HCLog(t *testing.T) {
	logger := withFields(hclog.NewNullLogger(), "role", "server")

	// These should not panic
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}

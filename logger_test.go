package datastore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// mockLogger captures log messages for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) Info(ctx context.Context, format string, args ...interface{}) {
	m.record("INFO", format, args...)
}

func (m *mockLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	m.record("WARN", format, args...)
}

func (m *mockLogger) Error(ctx context.Context, format string, args ...interface{}) {
	m.record("ERROR", format, args...)
}

func (m *mockLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	m.record("DEBUG", format, args...)
}

func (m *mockLogger) record(level, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, fmt.Sprintf(level+": "+format, args...))
}

func (m *mockLogger) contains(substring string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg, substring) {
			return true
		}
	}
	return false
}

func TestStore_LogsEngineFailures(t *testing.T) {
	logger := &mockLogger{}
	mock := &mockEngine{
		setFunc: func(ctx context.Context, key string, e Entry) error {
			return ErrTimeout
		},
	}
	s := newMockStore(t, mock, WithName("cfg"), WithLogger(logger))

	_ = s.Set(context.Background(), Seq("k"), []byte("v"), 0, "")

	if !logger.contains("ERROR") {
		t.Error("engine failure should be logged at error level")
	}
	if !logger.contains("cfg:k") {
		t.Errorf("log should carry the physical key, got %v", logger.messages)
	}
}

func TestStore_LogTagPrefix(t *testing.T) {
	logger := &mockLogger{}
	mock := &mockEngine{
		clearFunc: func(ctx context.Context) (int, error) {
			return 0, ErrTimeout
		},
	}
	s := newMockStore(t, mock, WithLogger(logger), WithLogTag("[cache]"))

	_, _ = s.Clear(context.Background())

	if !logger.contains("[cache]") {
		t.Errorf("log tag missing from messages: %v", logger.messages)
	}
}

func TestStore_NoLoggingOnSuccess(t *testing.T) {
	logger := &mockLogger{}
	s := newMockStore(t, &mockEngine{}, WithLogger(logger))

	if err := s.Set(context.Background(), Seq("k"), []byte("v"), 0, ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(logger.messages) != 0 {
		t.Errorf("successful ops should not log, got %v", logger.messages)
	}
}

func TestReshard_LogsMigration(t *testing.T) {
	logger := &mockLogger{}
	s, err := New("mem", WithOpener(OpenMemory), WithShards(4), WithLogger(logger))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Reshard(context.Background(), 2); err != nil {
		t.Fatalf("Reshard failed: %v", err)
	}
	if !logger.contains("resharding") {
		t.Errorf("reshard should log the migration, got %v", logger.messages)
	}
}

func TestNewSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	logger.Info(ctx, "info %d", 1)
	logger.Warn(ctx, "warn %d", 2)
	logger.Error(ctx, "error %d", 3)
	logger.Debug(ctx, "debug %d", 4)

	out := buf.String()
	for _, want := range []string{"info 1", "warn 2", "error 3", "debug 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("slog output missing %q: %s", want, out)
		}
	}
}

func TestNewSlogLogger_NilUsesDefault(t *testing.T) {
	logger := NewSlogLogger(nil)
	if logger == nil {
		t.Fatal("NewSlogLogger(nil) should return a usable logger")
	}
	// Must not panic.
	logger.Debug(context.Background(), "noop")
}

package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHandler records everything handed to it.
type mockHandler struct {
	mu      sync.Mutex
	records []slog.Record
	enabled bool
}

func (h *mockHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.enabled
}

func (h *mockHandler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *mockHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *mockHandler) WithGroup(name string) slog.Handler       { return h }

func TestTeeHandler_FanOut(t *testing.T) {
	a := &mockHandler{enabled: true}
	b := &mockHandler{enabled: true}
	tee := &teeHandler{out: []slog.Handler{a, b}}

	logger := slog.New(tee)
	logger.Info("hello", "session", "abc")

	assert.Len(t, a.records, 1)
	assert.Len(t, b.records, 1)
	assert.Equal(t, "hello", a.records[0].Message)
}

func TestTeeHandler_EnabledIfAny(t *testing.T) {
	a := &mockHandler{enabled: false}
	b := &mockHandler{enabled: true}
	tee := &teeHandler{out: []slog.Handler{a, b}}

	assert.True(t, tee.Enabled(context.Background(), slog.LevelInfo))

	b.enabled = false
	assert.False(t, tee.Enabled(context.Background(), slog.LevelInfo))
}

func TestInitLogger_FileOutput(t *testing.T) {
	old := slog.Default()
	defer slog.SetDefault(old)

	logFile := filepath.Join(t.TempDir(), "bridge.log")
	InitLogger(true, logFile)

	slog.Debug("debug line", "key", "value")

	f, err := os.Open(logFile)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan(), "expected at least one log line in file")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "debug line", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

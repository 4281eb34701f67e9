package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestSlogLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogWithOptions(Options{Level: InfoLevel, Output: &buf})

	log.Debug("dropped")
	log.Info("exchange", "id", 1, "state", "validated")
	log.With("component", "lx16a.bus").Warn("quiet-period reset")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "exchange", entries[0]["msg"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, float64(1), entries[0]["id"])
	assert.Contains(t, entries[0], "ts")
	assert.NotContains(t, entries[0], "time")

	assert.Equal(t, "WARN", entries[1]["level"])
	assert.Equal(t, "lx16a.bus", entries[1]["component"])
}

func TestSlogLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogWithOptions(Options{Level: ErrorLevel, Output: &buf})
	child := log.With("component", "test")

	assert.Equal(t, ErrorLevel, log.Level())
	log.Warn("hidden")
	assert.Zero(t, buf.Len())

	log.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, log.Level())
	assert.Equal(t, DebugLevel, child.Level(), "children share the level")

	child.Debug("shown")
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
}

func TestSlogLogger_Source(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogWithOptions(Options{Level: InfoLevel, AddSource: true, Output: &buf})

	log.Info("here")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source["file"], "slog_test.go")
}

func TestSlogLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogWithOptions(Options{Level: InfoLevel, Console: true, Output: &buf})

	log.Info("port opened", "port", "/dev/ttyUSB0")

	assert.Contains(t, buf.String(), "port opened")
	assert.Contains(t, buf.String(), "/dev/ttyUSB0")
}

func TestDefaultLogger(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	m := NewMockLogger()
	m.On("Info", "hello", []any{"k", "v"}).Once()
	m.On("SetLevel", DebugLevel).Once()

	SetLogger(m)
	SetLogger(nil)
	assert.Same(t, m, GetLogger())

	Info("hello", "k", "v")
	SetLevel(DebugLevel)

	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Warn", mock.Anything, mock.Anything)
}

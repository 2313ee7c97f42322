package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"civharvest/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
		{
			name: "file output",
			cfg:  &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	child := l.WithField("collection_id", 42)
	child.InfoWithFields("page fetched", map[string]interface{}{
		"received": 50,
		"elapsed":  1500 * time.Millisecond,
	})
	l.Info("plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "page fetched", lines[0]["message"])
	assert.Equal(t, float64(42), lines[0]["collection_id"])
	assert.Equal(t, float64(50), lines[0]["received"])
	assert.Equal(t, "civharvest", lines[0]["app"])

	// the parent is not affected by the child's fields
	_, ok := lines[1]["collection_id"]
	assert.False(t, ok)
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "warn")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "info")
	require.NoError(t, err)

	assert.Same(t, l, l.WithError(nil))
}

func TestTestLoggerCapturesChildren(t *testing.T) {
	tl := NewTestLogger()

	tl.WithField("image_id", int64(7)).WithError(errors.New("boom")).Warn("image skipped")
	tl.Info("done")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, int64(7), msgs[0].Fields["image_id"])
	assert.EqualError(t, msgs[0].Error, "boom")
	assert.True(t, tl.HasMessage("done"))
	assert.False(t, tl.HasError())
	assert.Contains(t, tl.String(), "[WARN] image skipped")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "image.getInfinite", 200, 30*time.Millisecond)
	LogRequest(tl, "image.getInfinite", 502, 30*time.Millisecond)
	LogItemSkipped(tl, 99, "generation data unavailable", errors.New("404"))
	LogMetrics(tl, "harvest", map[string]interface{}{"records": 3})

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 1)

	skipped := tl.GetMessagesByLevel("WARN")
	require.Len(t, skipped, 1)
	assert.Equal(t, int64(99), skipped[0].Fields["image_id"])

	info := tl.GetMessagesByLevel("INFO")
	require.Len(t, info, 1)
	assert.Equal(t, 3, info[0].Fields["records"])
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	t.Cleanup(func() { SetLogger(NewNopLogger()) })

	WithField("k", "v").Info("global")
	assert.True(t, tl.HasMessage("global"))
	assert.Same(t, tl, GetLogger())
}

func TestNewFileOnly(t *testing.T) {
	l, err := NewFileOnly(&config.LoggingConfig{Level: "info"})
	require.NoError(t, err)
	assert.Nil(t, l.GetZerolog())

	path := filepath.Join(t.TempDir(), "tui.log")
	l, err = NewFileOnly(&config.LoggingConfig{Level: "info", File: path})
	require.NoError(t, err)
	l.WithField("collection_id", 7).Info("listed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"collection_id":7`)
	assert.Contains(t, string(data), `"message":"listed"`)
}

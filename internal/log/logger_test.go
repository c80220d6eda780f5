package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSetupWriter(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	var buf bytes.Buffer
	SetupWriter("DEBUG", &buf)
	require.NotNil(t, logger)

	Get().Debug("visible")
	out := decodeLine(t, &buf)
	assert.Equal(t, "visible", out["msg"])
	assert.Equal(t, "DEBUG", out["level"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("engine").Info("hello")

	out := decodeLine(t, &buf)
	assert.Equal(t, "engine", out["component"])
	assert.Equal(t, "hello", out["msg"])
}

func TestWithJob(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithJob("job-123").Info("job msg")

	out := decodeLine(t, &buf)
	assert.Equal(t, "job-123", out["job_id"])
}

func TestWithStep(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithStep(WithJob("j1"), "step_a", "add_noise").Info("step msg")

	out := decodeLine(t, &buf)
	assert.Equal(t, "j1", out["job_id"])
	assert.Equal(t, "step_a", out["step"])
	assert.Equal(t, "add_noise", out["task"])
}

package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobEventToSlogDebugDisabled(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(old)
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	JobEventToSlog(&jobs.Job{ID: "j1", Status: jobs.StatusPending})
	assert.Equal(t, 0, buf.Len())
}

func TestJobEventToSlogDebugEnabled(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(old)
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	JobEventToSlog(&jobs.Job{
		ID:        "j1",
		Request:   jobs.Request{ModelID: "m1", Method: models.MethodShapley},
		Status:    jobs.StatusFailed,
		StartedAt: &started,
		Failure:   &jobs.Failure{Kind: "computation_failure", Message: "boom"},
	})

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "Job event", logEntry["msg"])
	assert.Equal(t, "j1", logEntry["jobID"])
	assert.Equal(t, "failed", logEntry["status"])
	assert.Equal(t, "m1", logEntry["modelID"])
	assert.Equal(t, "shapley", logEntry["method"])
	assert.Equal(t, "2025-03-01T12:00:00Z", logEntry["startedAt"])
	assert.Equal(t, "computation_failure", logEntry["failureKind"])
	assert.Equal(t, "boom", logEntry["failure"])
	assert.NotContains(t, logEntry, "finishedAt")
	assert.NotContains(t, logEntry, "cached")
}

func TestAddIf(t *testing.T) {
	attrs := []any{"existing", "value"}

	result := addIf(attrs, "missing", (*int)(nil))
	assert.Equal(t, attrs, result)

	v := 7
	result = addIf(attrs, "number", &v)
	assert.Equal(t, []any{"existing", "value", "number", 7}, result)
}

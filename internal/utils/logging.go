package utils

import (
	"context"
	"log/slog"

	"github.com/finxai/xai/internal/jobs"
)

// JobEventToSlog logs a job transition at debug level. It is shaped as a
// jobs.Listener.
func JobEventToSlog(job *jobs.Job) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{
		"jobID", job.ID,
		"status", job.Status,
		"modelID", job.Request.ModelID,
		"method", job.Request.Method,
	}

	attrs = addIf(attrs, "startedAt", job.StartedAt)
	attrs = addIf(attrs, "finishedAt", job.FinishedAt)
	if job.Failure != nil {
		attrs = addIf(attrs, "failureKind", &job.Failure.Kind)
		attrs = addIf(attrs, "failure", &job.Failure.Message)
	}
	if job.Cached {
		attrs = append(attrs, "cached", true)
	}

	slog.Debug("Job event", attrs...)
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name)
		attrs = append(attrs, *v)
	}

	return attrs
}

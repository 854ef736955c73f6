// Package joblog records global explanation job transitions as
// newline-delimited JSON and renders them as a timeline.
package joblog

import (
	"time"

	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
)

// Event is a single job status transition.
type Event struct {
	Timestamp  time.Time     `json:"timestamp"`
	JobID      string        `json:"job_id"`
	Status     jobs.Status   `json:"status"`
	ModelID    string        `json:"model_id"`
	Method     models.Method `json:"method"`
	SampleSize int           `json:"sample_size,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Failure    *jobs.Failure `json:"failure,omitempty"`
	// DurationMs is the processing time of a terminal job that started.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// FromJob captures job's current status.
func FromJob(job *jobs.Job) Event {
	ev := Event{
		Timestamp:  time.Now().UTC(),
		JobID:      job.ID,
		Status:     job.Status,
		ModelID:    job.Request.ModelID,
		Method:     job.Request.Method,
		SampleSize: job.Request.SampleSize,
		Cached:     job.Cached,
		Failure:    job.Failure,
	}
	if job.Result != nil {
		ev.SampleSize = job.Result.SampleSize
	}
	if job.Status.Terminal() && job.StartedAt != nil && job.FinishedAt != nil {
		ev.DurationMs = job.FinishedAt.Sub(*job.StartedAt).Milliseconds()
	}
	return ev
}

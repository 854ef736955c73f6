// Package jobs runs global explanation requests asynchronously. Callers
// submit a Request and receive a Job handle; workers compute the result and
// record each status transition in a Store.
package jobs

import (
	"errors"
	"time"

	"github.com/finxai/xai/internal/models"
)

var (
	// ErrJobNotFound is returned when a job ID does not match any stored job.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed is returned by Submit after Close.
	ErrQueueClosed = errors.New("job queue is closed")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Request describes a global explanation to compute.
type Request struct {
	ModelID    string        `json:"model_id"`
	Method     models.Method `json:"method"`
	SampleSize int           `json:"sample_size,omitempty"`
}

// Failure is the recorded reason of a failed job.
type Failure struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Job is the status record of one asynchronous request.
type Job struct {
	ID         string                    `json:"job_id"`
	Request    Request                   `json:"request"`
	Status     Status                    `json:"status"`
	Result     *models.GlobalAttribution `json:"result,omitempty"`
	Failure    *Failure                  `json:"failure,omitempty"`
	Cached     bool                      `json:"cached,omitempty"`
	CreatedAt  time.Time                 `json:"created_at"`
	StartedAt  *time.Time                `json:"started_at,omitempty"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
}

// Clone returns a copy that shares only the immutable result.
func (j *Job) Clone() *Job {
	c := *j
	if j.Failure != nil {
		f := *j.Failure
		c.Failure = &f
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Duration returns how long the job ran, or zero if it has not finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

package webapi

import (
	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/models"
)

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// GlobalRequest is the optional body of a global explanation request.
type GlobalRequest struct {
	Method     string `json:"method,omitempty"`
	SampleSize int    `json:"sample_size,omitempty"`
}

// LocalResponse is a local explanation requested with ?interpret=true.
type LocalResponse struct {
	*models.LocalAttribution
	Interpretation *interpretation.Interpretation `json:"interpretation"`
}

// JobAccepted is returned when a global explanation is enqueued.
type JobAccepted struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Location string `json:"location"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error            string          `json:"error"`
	Kind             string          `json:"kind,omitempty"`
	Retryable        bool            `json:"retryable"`
	SupportedMethods []models.Method `json:"supported_methods,omitempty"`
	Code             int             `json:"code"`
}

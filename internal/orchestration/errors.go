package orchestration

import (
	"context"
	"errors"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
)

// Kind classifies an orchestrator error for transports.
type Kind string

const (
	KindArtifactNotFound   Kind = "artifact_not_found"
	KindIncompatibleMethod Kind = "incompatible_method"
	KindIndexOutOfBounds   Kind = "index_out_of_bounds"
	KindUnknownMethod      Kind = "unknown_method"
	KindInvalidRequest     Kind = "invalid_request"
	KindJobNotFound        Kind = "job_not_found"
	KindExplanationTimeout Kind = "explanation_timeout"
	KindServiceUnavailable Kind = "service_unavailable"
	KindCanceled           Kind = "canceled"
	KindComputationFailure Kind = "computation_failure"
)

// ClientError reports whether the caller caused the error.
func (k Kind) ClientError() bool {
	switch k {
	case KindArtifactNotFound, KindIncompatibleMethod, KindIndexOutOfBounds,
		KindUnknownMethod, KindInvalidRequest, KindJobNotFound:
		return true
	}
	return false
}

// Error is the uniform error envelope returned by every Orchestrator
// operation.
type Error struct {
	Kind             Kind            `json:"kind"`
	Message          string          `json:"message"`
	Retryable        bool            `json:"retryable"`
	SupportedMethods []models.Method `json:"supported_methods,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

var kindSentinels = map[Kind]error{
	KindArtifactNotFound:   models.ErrArtifactNotFound,
	KindIncompatibleMethod: models.ErrIncompatibleMethod,
	KindIndexOutOfBounds:   models.ErrIndexOutOfBounds,
	KindUnknownMethod:      models.ErrUnknownMethod,
	KindJobNotFound:        jobs.ErrJobNotFound,
	KindExplanationTimeout: models.ErrExplanationTimeout,
	KindCanceled:           context.Canceled,
	KindComputationFailure: models.ErrComputationFailure,
}

// Is lets callers match an envelope against the taxonomy sentinels.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// Failure converts the envelope into a recorded job failure.
func (e *Error) Failure() jobs.Failure {
	return jobs.Failure{Kind: string(e.Kind), Message: e.Message, Retryable: e.Retryable}
}

// Classify maps any error to the envelope. Envelopes pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	msg := err.Error()
	var ime *models.IncompatibleMethodError
	switch {
	case errors.As(err, &ime):
		return &Error{Kind: KindIncompatibleMethod, Message: msg, SupportedMethods: ime.Supported}
	case errors.Is(err, models.ErrArtifactNotFound):
		return &Error{Kind: KindArtifactNotFound, Message: msg}
	case errors.Is(err, models.ErrIndexOutOfBounds):
		return &Error{Kind: KindIndexOutOfBounds, Message: msg}
	case errors.Is(err, models.ErrUnknownMethod):
		return &Error{Kind: KindUnknownMethod, Message: msg, SupportedMethods: models.Methods}
	case errors.Is(err, jobs.ErrJobNotFound):
		return &Error{Kind: KindJobNotFound, Message: msg}
	case errors.Is(err, models.ErrExplanationTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindExplanationTimeout, Message: msg, Retryable: true}
	case errors.Is(err, models.ErrQueueFull), errors.Is(err, artifact.ErrStoreUnavailable), errors.Is(err, jobs.ErrQueueClosed):
		return &Error{Kind: KindServiceUnavailable, Message: msg, Retryable: true}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Message: msg, Retryable: true}
	}
	return &Error{Kind: KindComputationFailure, Message: msg}
}

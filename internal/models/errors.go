package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the artifact store, the explainer cache and the
// attribution engine. Callers match with errors.Is.
var (
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrIncompatibleMethod = errors.New("incompatible method")
	ErrIndexOutOfBounds   = errors.New("instance index out of bounds")
	ErrExplanationTimeout = errors.New("explanation timed out")
	ErrComputationFailure = errors.New("computation failure")
	ErrUnknownMethod      = errors.New("unknown method")
	ErrQueueFull          = errors.New("job queue is full")
)

// IncompatibleMethodError is returned when a method cannot explain a model family.
type IncompatibleMethodError struct {
	ModelID   string
	Family    Family
	Method    Method
	Supported []Method
}

func (e *IncompatibleMethodError) Error() string {
	names := make([]string, len(e.Supported))
	for i, m := range e.Supported {
		names[i] = string(m)
	}
	return fmt.Sprintf("method %q is not supported for model %s (family %s); supported: %s",
		e.Method, e.ModelID, e.Family, strings.Join(names, ", "))
}

func (e *IncompatibleMethodError) Is(target error) bool {
	return target == ErrIncompatibleMethod
}

// NewIncompatibleMethodError builds the error for model h and method m.
func NewIncompatibleMethodError(h *Handle, m Method) *IncompatibleMethodError {
	return &IncompatibleMethodError{
		ModelID:   h.ID,
		Family:    h.Family,
		Method:    m,
		Supported: SupportedMethods(h.Family),
	}
}

// IndexError reports an instance index outside the held-out split.
func IndexError(modelID string, index, size int) error {
	return fmt.Errorf("%w: index %d for model %s (split has %d rows)", ErrIndexOutOfBounds, index, modelID, size)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/finxai/xai/internal/orchestration"
	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Message: "2 artifact(s) failed validation"}
	assert.Equal(t, "2 artifact(s) failed validation", err.Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", &ValidationError{Message: "bad"}, ExitClientError},
		{"wrapped validation", errors.Join(&ValidationError{Message: "bad"}, errors.New("more")), ExitClientError},
		{"unknown model", &orchestration.Error{Kind: orchestration.KindArtifactNotFound}, ExitClientError},
		{"bad index", fmt.Errorf("explain: %w", &orchestration.Error{Kind: orchestration.KindIndexOutOfBounds}), ExitClientError},
		{"timeout", &orchestration.Error{Kind: orchestration.KindExplanationTimeout}, ExitError},
		{"computation", &orchestration.Error{Kind: orchestration.KindComputationFailure}, ExitError},
		{"config", errors.New("loading .xai.yaml: bad"), ExitError},
		{"interrupted", context.Canceled, ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

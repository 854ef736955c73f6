package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/finxai/xai/internal/orchestration"
)

// Exit codes for different failure modes
const (
	ExitSuccess     = 0 // Command succeeded
	ExitClientError = 1 // Bad request: unknown model, bad index, invalid artifact
	ExitError       = 2 // Configuration or runtime error
)

// ValidationError indicates that validation ran but found problems.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitClientError
	}
	var orchErr *orchestration.Error
	if errors.As(err, &orchErr) && orchErr.Kind.ClientError() {
		return ExitClientError
	}
	// All other errors are configuration/runtime errors
	return ExitError
}

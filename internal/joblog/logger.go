package joblog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/finxai/xai/internal/jobs"
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("job log is closed")

// Recorder persists job transitions.
type Recorder interface {
	Record(event Event) error
	Close() error
}

// FileRecorder appends one JSON line per transition to a file shared by
// every process pointed at the same jobs.event_log. Each line goes out in a
// single write so concurrent appenders do not interleave.
type FileRecorder struct {
	path string

	mu      sync.Mutex
	file    *os.File
	written int
}

// OpenFile opens path for appending, creating it and its directory.
func OpenFile(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating job log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening job log: %w", err)
	}
	return &FileRecorder{path: path, file: f}, nil
}

func (r *FileRecorder) Record(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event for job %s: %w", event.JobID, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ErrClosed
	}
	if _, err := r.file.Write(line); err != nil {
		return err
	}
	r.written++
	return nil
}

// Close is idempotent.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *FileRecorder) Path() string { return r.path }

// Written is the number of transitions recorded since OpenFile.
func (r *FileRecorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Discard is used when jobs.event_log is unset.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) error { return nil }
func (discard) Close() error       { return nil }

// Listener records every transition the queue reports. A failed write is
// logged and dropped; the job itself is unaffected.
func Listener(r Recorder, logger *slog.Logger) jobs.Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(job *jobs.Job) {
		if err := r.Record(FromJob(job)); err != nil {
			logger.Warn("recording job transition", "job_id", job.ID, "status", job.Status, "error", err)
		}
	}
}

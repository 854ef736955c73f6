package joblog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/finxai/xai/internal/jobs"
)

// ReadEvents parses all events from a job log file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening job log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading job log: %w", err)
	}
	return events, nil
}

// Filter keeps the events of one model. An empty modelID keeps everything.
func Filter(events []Event, modelID string) []Event {
	if modelID == "" {
		return events
	}
	var out []Event
	for _, ev := range events {
		if ev.ModelID == modelID {
			out = append(out, ev)
		}
	}
	return out
}

// RenderTimeline writes a human-readable job timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No job events found.")
		return
	}

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))
		job := shortID(ev.JobID)

		switch ev.Status {
		case jobs.StatusPending:
			fmt.Fprintf(w, "[%s] ⏳ %s queued      %s %s", ts, job, ev.ModelID, ev.Method)
			if ev.SampleSize > 0 {
				fmt.Fprintf(w, " n=%d", ev.SampleSize)
			}
			fmt.Fprintln(w)
		case jobs.StatusProcessing:
			fmt.Fprintf(w, "[%s] ▶  %s processing\n", ts, job)
		case jobs.StatusCompleted:
			note := ""
			if ev.Cached {
				note = " (cached)"
			}
			fmt.Fprintf(w, "[%s] ✓  %s completed   n=%d (%dms)%s\n", ts, job, ev.SampleSize, ev.DurationMs, note)
		case jobs.StatusFailed:
			kind, msg := "unknown", ""
			if ev.Failure != nil {
				kind, msg = ev.Failure.Kind, ev.Failure.Message
			}
			fmt.Fprintf(w, "[%s] ✗  %s failed      %s: %s\n", ts, job, kind, msg)
		case jobs.StatusCanceled:
			fmt.Fprintf(w, "[%s] ⊘  %s canceled\n", ts, job)
		default:
			fmt.Fprintf(w, "[%s] %s %s\n", ts, job, ev.Status)
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/finxai/xai/internal/joblog"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/projectconfig"
	"github.com/spf13/cobra"
)

func newJobsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect global explanation jobs",
	}

	cmd.AddCommand(newJobsStatusCommand(flags))
	cmd.AddCommand(newJobsLogCommand(flags))

	return cmd
}

func newJobsStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job from the configured job store",
		Long: `Show a job from the configured job store.

Jobs are only visible across processes when jobs.store is "redis"; the
memory store is private to the server that accepted the job.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				job, err := a.orch.PollJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), job)
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
}

func printJob(w io.Writer, job *jobs.Job) {
	fmt.Fprintf(w, "Job %s: %s\n", job.ID, job.Status)                               //nolint:errcheck
	fmt.Fprintf(w, "Model %s, method %s\n", job.Request.ModelID, job.Request.Method) //nolint:errcheck
	fmt.Fprintf(w, "Created %s\n", job.CreatedAt.Format("2006-01-02 15:04:05 MST"))  //nolint:errcheck
	if job.StartedAt != nil && job.FinishedAt != nil {
		fmt.Fprintf(w, "Ran for %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond)) //nolint:errcheck
	}
	if job.Failure != nil {
		fmt.Fprintf(w, "Failure: %s: %s\n", job.Failure.Kind, job.Failure.Message) //nolint:errcheck
	}
	if job.Result != nil {
		fmt.Fprintln(w) //nolint:errcheck
		printGlobal(w, job.Result, 10)
	}
}

func newJobsLogCommand(flags *globalFlags) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "log [path]",
		Short: "Show the job event log as a timeline",
		Long: `Show the job event log as a timeline.

The log is written when jobs.event_log is set in .xai.yaml. A path argument
reads a different log file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := projectconfig.Load(flags.configDir)
				if err != nil {
					return err
				}
				if path = cfg.EventLogPath(); path == "" {
					return &ValidationError{Message: "job event log is disabled; set jobs.event_log in " + projectconfig.FileName}
				}
			}

			events, err := joblog.ReadEvents(path)
			if err != nil {
				return err
			}
			events = joblog.Filter(events, model)
			if flags.json {
				if events == nil {
					events = []joblog.Event{}
				}
				return printJSON(cmd.OutOrStdout(), events)
			}
			joblog.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Only show jobs for this model")

	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
	"github.com/finxai/xai/internal/spinner"
	"github.com/spf13/cobra"
)

const pollInterval = 100 * time.Millisecond

func newExplainCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain model predictions",
		Long: `Explain model predictions.

"explain local" attributes one held-out prediction to its features and
returns within the local timeout; --interpret adds a plain-language reading
of the top factors. "explain global" ranks features by mean
absolute attribution over a sample of the held-out split; it runs as an
asynchronous job that this command waits for.`,
	}

	cmd.AddCommand(newLocalCommand(flags))
	cmd.AddCommand(newGlobalCommand(flags, "global <model-id>"))

	return cmd
}

func newLocalCommand(flags *globalFlags) *cobra.Command {
	var method string
	var interpret bool

	cmd := &cobra.Command{
		Use:   "local <model-id> <index>",
		Short: "Explain one held-out prediction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return &orchestration.Error{Kind: orchestration.KindInvalidRequest, Message: fmt.Sprintf("instance index %q is not an integer", args[1])}
			}
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				res, err := a.orch.RequestLocalExplanation(cmd.Context(), args[0], index, method)
				if err != nil {
					return err
				}
				if !interpret {
					if flags.json {
						return printJSON(cmd.OutOrStdout(), res)
					}
					printLocal(cmd.OutOrStdout(), res)
					return nil
				}

				in := a.orch.Interpret(res)
				if flags.json {
					return printJSON(cmd.OutOrStdout(), interpretedLocal{LocalAttribution: res, Interpretation: in})
				}
				printLocal(cmd.OutOrStdout(), res)
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", in.Text) //nolint:errcheck
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", string(models.MethodShapley), "Attribution method (shapley, surrogate)")
	cmd.Flags().BoolVar(&interpret, "interpret", false, "Add a rule-based reading of the top factors")

	return cmd
}

type interpretedLocal struct {
	*models.LocalAttribution
	Interpretation *interpretation.Interpretation `json:"interpretation"`
}

func printLocal(w io.Writer, res *models.LocalAttribution) {
	fmt.Fprintf(w, "Model %s, instance %d, method %s\n", res.ModelID, res.InstanceIndex, res.Method) //nolint:errcheck
	fmt.Fprintf(w, "Prediction: %s (p=%.4f)", res.Prediction.Label, res.Prediction.Probability)      //nolint:errcheck
	if res.TrueLabel != nil {
		fmt.Fprintf(w, ", true class %d", *res.TrueLabel) //nolint:errcheck
	}
	fmt.Fprintf(w, "\nBase value %.4f, score %.4f", res.BaseValue, res.Score) //nolint:errcheck
	if res.SurrogateFit != nil {
		fmt.Fprintf(w, ", surrogate fit R²=%.4f", *res.SurrogateFit) //nolint:errcheck
	}
	fmt.Fprint(w, "\n\n") //nolint:errcheck

	rows := make([][]string, len(res.Contributions))
	for i, c := range res.Contributions {
		rows[i] = []string{truncateName(c.Feature, 32), strconv.FormatFloat(c.Value, 'g', 6, 64), signed(c.Contribution)}
	}
	printTable(w, []string{"FEATURE", "VALUE", "CONTRIBUTION"}, rows)
}

// newGlobalCommand builds the global explanation command. It is mounted both
// as "explain global" and as the top-level "importance".
func newGlobalCommand(flags *globalFlags, use string) *cobra.Command {
	var method string
	var sampleSize, top int

	cmd := &cobra.Command{
		Use:   use,
		Short: "Rank features by global importance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sampleSize < 0 {
				return &orchestration.Error{Kind: orchestration.KindInvalidRequest, Message: "--sample-size must not be negative"}
			}
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				res, err := runGlobal(cmd.Context(), a.orch, cmd.ErrOrStderr(), args[0], method, sampleSize)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), res)
				}
				printGlobal(cmd.OutOrStdout(), res, top)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", string(models.MethodShapley), "Attribution method (shapley, surrogate)")
	cmd.Flags().IntVarP(&sampleSize, "sample-size", "n", 0, "Held-out rows to aggregate over (0 uses the configured default)")
	cmd.Flags().IntVar(&top, "top", 0, "Show only the top N features (0 shows all)")

	return cmd
}

// runGlobal submits a global job and waits for it. A spinner is drawn on
// progress when it is a terminal. Canceling ctx cancels the job.
func runGlobal(ctx context.Context, orch *orchestration.Orchestrator, progress io.Writer, modelID, method string, sampleSize int) (*models.GlobalAttribution, error) {
	job, err := orch.RequestGlobalExplanation(ctx, modelID, method, sampleSize)
	if err != nil {
		return nil, err
	}
	if spinner.Enabled(progress) {
		sp := spinner.Start(progress, fmt.Sprintf("explaining %s (%s)", modelID, job.Status))
		defer sp.Stop()
		orch.OnJobEvent(func(j *jobs.Job) {
			if j.ID == job.ID {
				sp.Update(fmt.Sprintf("explaining %s (%s)", modelID, j.Status))
			}
		})
	}
	job, err = waitForJob(ctx, orch, job.ID)
	if err != nil {
		return nil, err
	}
	return jobResult(job)
}

// waitForJob polls until the job is terminal.
func waitForJob(ctx context.Context, orch *orchestration.Orchestrator, id string) (*jobs.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		job, err := orch.PollJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			_, _ = orch.CancelJob(context.WithoutCancel(ctx), id)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// jobResult turns a finished job into its result or error envelope.
func jobResult(job *jobs.Job) (*models.GlobalAttribution, error) {
	switch job.Status {
	case jobs.StatusCompleted:
		return job.Result, nil
	case jobs.StatusCanceled:
		return nil, &orchestration.Error{Kind: orchestration.KindCanceled, Message: "job " + job.ID + " was canceled", Retryable: true}
	}
	if job.Failure == nil {
		return nil, errors.New("job " + job.ID + " failed")
	}
	return nil, &orchestration.Error{
		Kind:      orchestration.Kind(job.Failure.Kind),
		Message:   job.Failure.Message,
		Retryable: job.Failure.Retryable,
	}
}

func printGlobal(w io.Writer, res *models.GlobalAttribution, top int) {
	fmt.Fprintf(w, "Model %s, method %s, %d instances, base value %.4f\n\n", res.ModelID, res.Method, res.SampleSize, res.BaseValue) //nolint:errcheck

	features := res.Features
	if top > 0 && top < len(features) {
		features = features[:top]
	}
	rows := make([][]string, len(features))
	for i, f := range features {
		rows[i] = []string{
			strconv.Itoa(f.Rank),
			truncateName(f.Feature, 32),
			fixed(f.Importance),
			fixed(f.Std),
			fmt.Sprintf("%d/%d", f.PositiveCount, f.NegativeCount),
		}
	}
	printTable(w, []string{"RANK", "FEATURE", "IMPORTANCE", "STD", "+/-"}, rows)
}

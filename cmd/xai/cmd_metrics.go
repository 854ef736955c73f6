package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/finxai/xai/internal/metrics"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newAgreementCommand(flags *globalFlags) *cobra.Command {
	var sampleSize int

	cmd := &cobra.Command{
		Use:   "agreement <model-id>",
		Short: "Compare the shapley and surrogate feature rankings of a model",
		Long: `Compare the shapley and surrogate feature rankings of a model.

Both global explanations are computed over the same held-out sample. The
report gives the Spearman rank correlation and the top-k overlap for
k = 5, 10 and 20. Only tree-ensemble models support both methods.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				var shapley, surrogate *models.GlobalAttribution
				g, ctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error {
					var err error
					shapley, err = runGlobal(ctx, a.orch, cmd.ErrOrStderr(), args[0], string(models.MethodShapley), sampleSize)
					return err
				})
				g.Go(func() error {
					var err error
					surrogate, err = runGlobal(ctx, a.orch, io.Discard, args[0], string(models.MethodSurrogate), sampleSize)
					return err
				})
				if err := g.Wait(); err != nil {
					return err
				}

				agreement := metrics.CompareRankings(shapley, surrogate)
				if flags.json {
					return printJSON(cmd.OutOrStdout(), agreement)
				}
				printAgreement(cmd.OutOrStdout(), args[0], agreement)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&sampleSize, "sample-size", "n", 0, "Held-out rows to aggregate over (0 uses the configured default)")

	return cmd
}

func printAgreement(w io.Writer, modelID string, a *metrics.Agreement) {
	fmt.Fprintf(w, "Model %s: shapley vs surrogate over %d common features\n", modelID, a.CommonFeatures) //nolint:errcheck
	fmt.Fprintf(w, "Spearman rank correlation: %s\n\n", ratio(a.Spearman))                                //nolint:errcheck
	rows := make([][]string, len(a.TopK))
	for i, k := range a.TopK {
		rows[i] = []string{strconv.Itoa(k.K), strconv.Itoa(k.Overlap), fixed(k.Fraction)}
	}
	printTable(w, []string{"K", "OVERLAP", "FRACTION"}, rows)
}

func newQualityCommand(flags *globalFlags) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "quality <model-id> <index>",
		Short: "Score the explanation of one held-out prediction",
		Long: `Score the explanation of one held-out prediction.

Faithfulness correlates attribution magnitude with the score change seen
when each feature is replaced by its baseline. Robustness measures how far
the attribution moves under small input noise. Complexity measures how
concentrated the attribution is.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return &orchestration.Error{Kind: orchestration.KindInvalidRequest, Message: fmt.Sprintf("instance index %q is not an integer", args[1])}
			}
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				q, err := a.orch.RequestQualityMetrics(cmd.Context(), args[0], index, method)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), q)
				}
				printQuality(cmd.OutOrStdout(), q)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", string(models.MethodShapley), "Attribution method (shapley, surrogate)")

	return cmd
}

func printQuality(w io.Writer, q *metrics.Quality) {
	fmt.Fprintf(w, "Model %s, instance %d, method %s\n\n", q.ModelID, q.InstanceIndex, q.Method) //nolint:errcheck
	printTable(w, []string{"METRIC", "VALUE"}, [][]string{
		{"faithfulness", ratio(q.Faithfulness.Score)},
		{fmt.Sprintf("top-%d drop", q.Faithfulness.TopK), signed(q.Faithfulness.TopKDrop)},
		{"robustness mean distance", fixed(q.Robustness.MeanDistance)},
		{"robustness max distance", fixed(q.Robustness.MaxDistance)},
		{"robustness relative distance", ratio(q.Robustness.RelativeDistance)},
		{"robustness 95% CI", fmt.Sprintf("[%.4f, %.4f]", q.Robustness.CI.Lower, q.Robustness.CI.Upper)},
		{"entropy", fixed(q.Complexity.Entropy)},
		{"normalized entropy", ratio(q.Complexity.NormalizedEntropy)},
		{"gini", ratio(q.Complexity.Gini)},
		{"effective features", strconv.Itoa(q.Complexity.EffectiveFeatures)},
		{"sparsity", ratio(q.Complexity.Sparsity)},
	})
}

func newPerformanceCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance <model-id>",
		Short: "Evaluate a classifier on its held-out split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				p, err := a.orch.RequestPerformanceMetrics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), p)
				}
				printPerformance(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	return cmd
}

func printPerformance(w io.Writer, p *metrics.Performance) {
	fmt.Fprintf(w, "Model %s: %d samples, %d positive, threshold %.2f\n", p.ModelID, p.SampleCount, p.PositiveCount, p.Threshold) //nolint:errcheck
	if p.Confusion.Defined {
		fmt.Fprintf(w, "Confusion: tp=%d fp=%d fn=%d tn=%d\n", p.Confusion.TP, p.Confusion.FP, p.Confusion.FN, p.Confusion.TN) //nolint:errcheck
	}
	fmt.Fprintln(w) //nolint:errcheck
	printTable(w, []string{"METRIC", "VALUE"}, [][]string{
		{"accuracy", ratio(p.Accuracy)},
		{"precision", ratio(p.Precision)},
		{"recall", ratio(p.Recall)},
		{"specificity", ratio(p.Specificity)},
		{"f1", ratio(p.F1)},
		{"auc roc", ratio(p.AUCROC)},
		{"average precision", ratio(p.AveragePrecision)},
		{"log loss", ratio(p.LogLoss)},
		{"brier", ratio(p.Brier)},
		{"ece", ratio(p.ECE)},
		{"mce", ratio(p.MCE)},
	})
	for _, n := range p.Notes {
		fmt.Fprintf(w, "\nnote: %s\n", n) //nolint:errcheck
	}
}

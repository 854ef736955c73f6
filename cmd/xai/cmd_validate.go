package main

import (
	"context"
	"fmt"
	"io"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/projectconfig"
	"github.com/finxai/xai/internal/validation"
	"github.com/spf13/cobra"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [model.json...]",
		Short: "Validate model artifacts",
		Long: `Validate model artifacts.

With file arguments, each model JSON file is checked against the model
schema. Without arguments, every model in the configured artifact store is
loaded together with its held-out split, and the split columns are checked
against the model's features.

Exit codes:
  0  all artifacts are valid
  1  at least one artifact is invalid
  2  configuration or I/O error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var failed int
			if len(args) > 0 {
				for _, path := range args {
					errs, err := validation.ValidateModelFile(path)
					if err != nil {
						return err
					}
					if !report(out, path, errs) {
						failed++
					}
				}
			} else {
				cfg, err := projectconfig.Load(flags.configDir)
				if err != nil {
					return err
				}
				store, err := newArtifactStore(cfg, nil)
				if err != nil {
					return err
				}
				if failed, err = validateStore(cmd.Context(), out, store); err != nil {
					return err
				}
			}
			if failed > 0 {
				return &ValidationError{Message: fmt.Sprintf("%d artifact(s) failed validation", failed)}
			}
			return nil
		},
	}

	return cmd
}

// validateStore loads every model the store can list and returns how many
// failed to load.
func validateStore(ctx context.Context, out io.Writer, store artifact.Store) (int, error) {
	lister, ok := store.(artifact.Lister)
	if !ok {
		return 0, fmt.Errorf("artifact store %T cannot list models; pass model files instead", store)
	}
	ids, err := lister.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No models found") //nolint:errcheck
		return 0, nil
	}
	var failed int
	for _, id := range ids {
		var errs []string
		if _, _, err := artifact.Load(ctx, store, id); err != nil {
			errs = []string{err.Error()}
		}
		if !report(out, id, errs) {
			failed++
		}
	}
	return failed, nil
}

func report(out io.Writer, name string, errs []string) bool {
	if len(errs) == 0 {
		fmt.Fprintf(out, "✓ %s\n", name) //nolint:errcheck
		return true
	}
	fmt.Fprintf(out, "✗ %s\n", name) //nolint:errcheck
	for _, e := range errs {
		fmt.Fprintf(out, "    %s\n", e) //nolint:errcheck
	}
	return false
}

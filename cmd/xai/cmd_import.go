package main

import (
	"fmt"
	"os"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/projectconfig"
	"github.com/finxai/xai/internal/validation"
	"github.com/spf13/cobra"
)

func newImportCommand(flags *globalFlags) *cobra.Command {
	var labelColumn, compression string

	cmd := &cobra.Command{
		Use:   "import <model.json> <split.csv>",
		Short: "Add a model and its held-out split to the local artifact directory",
		Long: `Add a model and its held-out split to the local artifact directory.

The model file is validated against the model schema and the split columns
are checked against the model's features before anything is written. The
model id is taken from the model file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := projectconfig.Load(flags.configDir)
			if err != nil {
				return err
			}
			if compression == "" {
				compression = cfg.Artifacts.Compression
			}
			c := artifact.Compression(compression)
			if c != artifact.CompressionNone && c != artifact.CompressionZstd {
				return &ValidationError{Message: fmt.Sprintf("unknown compression %q (want none or zstd)", compression)}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading model file: %w", err)
			}
			if errs := validation.ValidateModelBytes(data); len(errs) > 0 {
				report(cmd.ErrOrStderr(), args[0], errs)
				return &ValidationError{Message: args[0] + " is not a valid model"}
			}
			h, err := artifact.DecodeModel(data)
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}
			split, err := dataset.LoadSplitCSV(args[1], dataset.CSVOptions{LabelColumn: labelColumn})
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}

			artifactDir, _ := cfg.Paths()
			if err := artifact.NewFileStore(artifactDir).Save(cmd.Context(), h, split, c); err != nil {
				return &ValidationError{Message: err.Error()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%d features, %d held-out rows) into %s\n", //nolint:errcheck
				h.ID, len(h.FeatureNames), split.Len(), artifactDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&labelColumn, "label-column", "", `Label column in the split (default "label" or "target", else the last column)`)
	cmd.Flags().StringVar(&compression, "compression", "", "Artifact compression: none or zstd (default from .xai.yaml)")

	return cmd
}

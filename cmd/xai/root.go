package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/finxai/xai/internal/projectconfig"
	"github.com/finxai/xai/internal/webapi"
	"github.com/spf13/cobra"
)

var version = webapi.Version

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configDir string
	json      bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "xai",
		Short: "xai - explanation engine for credit-risk models",
		Long: `xai explains predictions of tree-ensemble and logistic-regression models.

It computes global feature importance and per-instance attributions
(TreeSHAP "shapley" and a weighted ridge "surrogate"), explanation quality
metrics and classifier performance metrics, and serves them over REST and
JSON-RPC.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.configDir, "config-dir", ".", "Directory to start the .xai.yaml lookup from")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Print results as JSON")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newServeCommand(flags))
	cmd.AddCommand(newRPCCommand(flags))
	cmd.AddCommand(newMCPCommand(flags))
	cmd.AddCommand(newExplainCommand(flags))
	cmd.AddCommand(newGlobalCommand(flags, "importance <model-id>"))
	cmd.AddCommand(newAgreementCommand(flags))
	cmd.AddCommand(newQualityCommand(flags))
	cmd.AddCommand(newPerformanceCommand(flags))
	cmd.AddCommand(newValidateCommand(flags))
	cmd.AddCommand(newImportCommand(flags))
	cmd.AddCommand(newCacheCommand(flags))
	cmd.AddCommand(newJobsCommand(flags))

	return cmd
}

// withApp loads configuration, wires the engine, runs fn and shuts the
// engine down.
func withApp(ctx context.Context, flags *globalFlags, withMetrics bool, fn func(*app) error) error {
	cfg, err := projectconfig.Load(flags.configDir)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, nil, withMetrics)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd := newRootCommand()
	return rootCmd.ExecuteContext(ctx)
}

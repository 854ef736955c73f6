package main

import (
	"fmt"
	"path/filepath"

	"github.com/finxai/xai/internal/cache"
	"github.com/finxai/xai/internal/projectconfig"
	"github.com/spf13/cobra"
)

func newCacheCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the global explanation result cache",
		Long: `Manage the global explanation result cache.

Completed global explanations are stored on disk keyed by model, method,
sample size and seed, so a repeated request is answered without recomputing.`,
	}

	cmd.AddCommand(newCacheClearCommand(flags))

	return cmd
}

func newCacheClearCommand(flags *globalFlags) *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the global explanation result cache",
		Long: `Clear all cached global explanation results.

The next global request for any model recomputes from scratch. Use
"DELETE /api/models/{id}/cache" or the cache.invalidate RPC to drop a
single model instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cacheDir == "" {
				cfg, err := projectconfig.Load(flags.configDir)
				if err != nil {
					return err
				}
				if _, cacheDir = cfg.Paths(); cacheDir == "" {
					return &ValidationError{Message: "result cache is disabled; pass --cache-dir"}
				}
			}

			// Resolve to absolute path
			absDir, err := filepath.Abs(cacheDir)
			if err != nil {
				return fmt.Errorf("resolving cache directory: %w", err)
			}

			if err := cache.NewResultCache(absDir).Clear(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", absDir) //nolint:errcheck
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory to clear (default from .xai.yaml)")

	return cmd
}

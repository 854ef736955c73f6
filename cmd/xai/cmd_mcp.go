package main

import (
	"log/slog"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/jsonrpc"
	"github.com/finxai/xai/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start a Model Context Protocol server on stdio",
		Long: `Start a Model Context Protocol (MCP) server on stdio.

The server exposes the explanation engine as tools: xai_list_models,
xai_explain_global, xai_explain_local, xai_interpret_local, xai_job_status,
xai_job_cancel, xai_quality_metrics, xai_performance_metrics and
xai_invalidate_cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				lister, _ := a.store.(artifact.Lister)
				srv := mcp.NewServer(jsonrpc.NewHandlerContext(a.orch), lister, slog.Default())
				srv.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
				return nil
			})
		},
	}
}

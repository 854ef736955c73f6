package main

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/finxai/xai/internal/jsonrpc"
	"github.com/spf13/cobra"
)

func newRPCCommand(flags *globalFlags) *cobra.Command {
	var tcpAddr string
	var tcpAllowRemote bool

	cmd := &cobra.Command{
		Use:   "rpc",
		Short: "Start a JSON-RPC 2.0 server",
		Long: `Start a JSON-RPC 2.0 server.

By default, the server communicates over stdin/stdout using newline-delimited JSON.

Use --tcp to start a TCP server instead.
TCP defaults to loopback (127.0.0.1) for security. Use --tcp-allow-remote to bind
to all interfaces.

Supported methods:
  explain.global       Enqueue a global explanation (returns job ID)
  explain.local        Explain one held-out prediction
  job.status           Get job status
  job.cancel           Cancel a job
  metrics.quality      Score the explanation of one prediction
  metrics.performance  Evaluate a model on its held-out split
  cache.invalidate     Drop cached state for a model

explain.global accepts "notify": true to receive a job.updated notification
when the job finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, false, func(a *app) error {
				logger := slog.Default()
				registry := jsonrpc.NewMethodRegistry()
				registry.Use(jsonrpc.Recover(logger))
				jsonrpc.RegisterHandlers(registry, jsonrpc.NewHandlerContext(a.orch))

				server := jsonrpc.NewServer(registry, logger)

				if tcpAddr != "" {
					addr := resolveTCPAddr(tcpAddr, tcpAllowRemote, logger)

					listener, err := jsonrpc.NewTCPListener(addr, server)
					if err != nil {
						return fmt.Errorf("failed to start TCP server: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "JSON-RPC server listening on %s\n", listener.Addr()) //nolint:errcheck
					return listener.Serve(cmd.Context())
				}

				fmt.Fprintln(cmd.ErrOrStderr(), "JSON-RPC server running on stdio") //nolint:errcheck
				server.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on (e.g., :9000)")
	cmd.Flags().BoolVar(&tcpAllowRemote, "tcp-allow-remote", false,
		"Allow binding to non-loopback addresses (WARNING: exposes the server to the network with no authentication)")

	return cmd
}

// resolveTCPAddr ensures TCP addresses default to loopback unless --tcp-allow-remote is set.
func resolveTCPAddr(addr string, allowRemote bool, logger *slog.Logger) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// Likely just a port like "9000"; treat as ":9000".
		host = ""
		port = addr
	}

	if allowRemote {
		logger.Warn("TCP server binding to all interfaces; no authentication is provided",
			"address", addr)
		return addr
	}

	// Default to loopback if no host specified or if 0.0.0.0/:: is used without --tcp-allow-remote.
	if host == "" || host == "0.0.0.0" || host == "::" {
		logger.Info("JSON-RPC server listening on TCP (local only)")
		return net.JoinHostPort("127.0.0.1", port)
	}

	return addr
}

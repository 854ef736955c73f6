package main

import (
	"fmt"

	"github.com/finxai/xai/internal/webserver"
	"github.com/spf13/cobra"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var host string
	var port int
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the REST API server.

Routes:
  GET    /api/health
  POST   /api/models/{id}/explanations/global     enqueue a global job (202)
  GET    /api/jobs/{id}                           poll a job
  DELETE /api/jobs/{id}                           cancel a job
  GET    /api/models/{id}/explanations/local/{index}?method=
  GET    /api/models/{id}/quality/{index}?method=
  GET    /api/models/{id}/performance
  DELETE /api/models/{id}/cache
  GET    /metrics                                 Prometheus metrics

The server binds to 127.0.0.1 unless --host is given. Per-client rate
limiting is configured with server.rate_limit and server.burst in .xai.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, true, func(a *app) error {
				if port == 0 {
					port = a.cfg.Server.Port
				}
				srv, err := webserver.New(webserver.Config{
					Host:           host,
					Port:           port,
					Explainer:      a.orch,
					Metrics:        a.telemetry,
					RateLimit:      a.cfg.Server.RateLimit,
					Burst:          a.cfg.Server.Burst,
					AllowedOrigins: origins,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "xai API listening on http://%s\n", srv.Addr()) //nolint:errcheck
				return srv.ListenAndServe(cmd.Context())
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Interface to bind (default 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from .xai.yaml, else 8080)")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "Origins allowed to call the API from a browser")

	return cmd
}

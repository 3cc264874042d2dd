package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/mcp"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP job API",
		Long: `Serve the job API until interrupted.

Routes:
  GET    /health
  GET    /metrics
  POST   /v1/populations/:id/generate   {"seed": 42}
  DELETE /v1/populations/:id/agents
  GET    /v1/runs/:id
  POST   /v1/runs/:id/input
  POST   /v1/runs/:id/ingest            {"output": "runs/1/output.json"}
  GET    /v1/jobs/:id

Mutating routes answer 202 with a pending job; add ?wait=true to block
until the job finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			addr, _ := cmd.Flags().GetString("address")
			if addr == "" {
				addr = a.cfg.Server.Address
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return server.New(a.svc, a.logger, version).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("address", "", "Listen address (default: server.address from config)")
	return cmd
}

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve metrosim tools over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout so an assistant can generate
populations, write run inputs, ingest outputs and inspect jobs.

Tool calls are audited to .metrosim/audit.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcp.NewServer(&mcp.Config{
				Name:     "metrosim",
				Version:  version,
				StateDir: a.stateDir,
			}, a.svc)
			defer srv.Close()

			return srv.Run(cmd.Context())
		},
	}
}

// signalContext is cancelled on interrupt or termination.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

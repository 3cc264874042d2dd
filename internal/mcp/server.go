// Package mcp provides an MCP (Model Context Protocol) server that lets an
// assistant start and inspect metrosim jobs.
package mcp

import (
	"context"
	"os"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/ratelimit"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

// Server wraps the MCP SDK server around a workflow service.
type Server struct {
	server       *sdk.Server
	svc          *workflow.Service
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name (e.g., "metrosim")
	Version  string // Server version
	StateDir string // Directory for audit.jsonl; empty disables auditing
}

// NewServer creates a new MCP server with metrosim tools.
func NewServer(cfg *Config, svc *workflow.Service) *Server {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		svc:          svc,
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.StateDir != "" {
		s.auditLogger = NewAuditLogger(cfg.StateDir)
	}

	s.registerTools()
	return s
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log. The workflow service is owned by the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

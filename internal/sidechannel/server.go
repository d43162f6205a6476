// Package sidechannel implements the Sidechannel Bridge (spec.md
// §4.4): an MCP server the orchestrator and child agents talk to over
// stdio, exposing ask_user/spawn_agent/get_agent_status/spawn_agents/
// wait_for_agents as tools and relaying each call to the Internal
// Coordination API over HTTP, carrying the per-process shared token.
//
// Grounded on the teacher's internal/mcpserver/server.go tool-server
// construction, adapted from its SSE/Streamable-HTTP transports to
// stdio since the caller here is a local subprocess, not a remote MCP
// client.
package sidechannel

import (
	"context"
	"net/http"
	"time"

	"github.com/kandev/agentexec/internal/obslog"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Config configures a Bridge's HTTP client to the Internal Coordination
// API. IsOrchestrator gates which tools are registered: only the
// orchestrator's bridge exposes the full spawn/status/wait surface,
// child agents get ask_user only (spec.md §4.4).
type Config struct {
	APIBaseURL     string
	TaskID         string
	Token          string
	IsOrchestrator bool
}

// Bridge owns the MCP tool server and its HTTP client to the
// coordination API.
type Bridge struct {
	cfg    Config
	client *http.Client
	logger *obslog.Logger
}

// New builds a Bridge from cfg.
func New(cfg Config, logger *obslog.Logger) *Bridge {
	return &Bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: 35 * time.Second},
		logger: logger.WithFields(zap.String("component", "sidechannel")),
	}
}

// Serve runs the MCP server over stdio until ctx is cancelled or stdin
// closes (spec.md §4.4: "the bridge is a stdio MCP server, one
// instance per agent subprocess").
func (b *Bridge) Serve(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		"agentexec-sidechannel",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	registerTools(mcpServer, b)

	done := make(chan error, 1)
	go func() { done <- server.ServeStdio(mcpServer) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

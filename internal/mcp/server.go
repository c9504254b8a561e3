// Package mcp exposes read-only pipeline introspection over the Model
// Context Protocol, so an agent (or its operator) can ask what has been
// captured and what is still owed delivery. Observation only: no tool
// here mutates pipeline state.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolscope/internal/buffer"
	"github.com/ppiankov/toolscope/internal/ledger"
)

// Server wraps the MCP SDK server around an open buffer and ledger.
type Server struct {
	mcpServer *mcpsdk.Server
	buf       *buffer.Buffer
	led       *ledger.Ledger
}

// New creates the introspection server.
func New(buf *buffer.Buffer, led *ledger.Ledger) *Server {
	s := &Server{buf: buf, led: led}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolscope",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds the read-only introspection tools.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "telemetry_status",
		Description: "Report telemetry pipeline counters: sessions, spooled records, and delivery states (pending/in-flight/acknowledged/dead-lettered).",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "session_records",
		Description: "Return the most recent telemetry records captured for one session.",
	}, s.handleSessionRecords)
}

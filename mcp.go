package daemonlink

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/wagiedev/daemonlink-go/internal/mcp"
)

// MCPServer is a Model Context Protocol server exposing the daemon.
type MCPServer = mcp.Server

// MCPDaemonStatus is the payload returned by the status tool.
type MCPDaemonStatus = internalmcp.DaemonStatus

// NewMCPServer creates an MCP server with two tools bound to client:
// "interact" ({"operations": [...]}) and "status".
//
// Serve it over stdio with ServeMCP:
//
//	server := daemonlink.NewMCPServer(client, "dbd", "1.0.0", daemonlink.WithLogger(log))
//	err := daemonlink.ServeMCP(ctx, server, &mcp.StdioTransport{})
func NewMCPServer(client Client, name, version string, opts ...Option) *MCPServer {
	options := applyOptions(opts)

	return internalmcp.NewServer(options.Logger, name, version, client)
}

// ServeMCP runs server over transport until the peer disconnects or ctx ends.
func ServeMCP(ctx context.Context, server *MCPServer, transport mcp.Transport) error {
	return internalmcp.Serve(ctx, server, transport)
}

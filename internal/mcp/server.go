package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/pdfchat-server/internal/service"
)

// DocumentService is the subset of service.Service the tools need.
type DocumentService interface {
	List(ctx context.Context) ([]string, error)
	Ask(ctx context.Context, id, question string) (*service.AskResult, error)
	Delete(ctx context.Context, id string) (string, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Service DocumentService
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v1.0.0"
	}
	impl := &mcp.Implementation{
		Name:    "pdfchat-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the identifiers of all uploaded PDF documents that can be queried.",
	}, makeListHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question using only the content of one uploaded PDF document. Use list_documents to find identifiers.",
	}, makeAskHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete an uploaded document's index so it can no longer be queried.",
	}, makeDeleteHandler(cfg.Service))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Package mcp implements the Model Context Protocol server for the workflow
// engine.
//
// It exposes the run lifecycle as MCP tools (start, status, advance,
// approve, cancel) and the workflow catalog as a resource, so MCP-compatible
// assistants can drive campaign workflows directly.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/abanklabs/crewflow/internal/workflow"
)

// Server wraps the MCP server with the workflow engine.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	runner      *workflow.Runner
	definitions map[string]workflow.Definition
	logger      *slog.Logger
}

// New creates and configures an MCP server with all resources and tools.
func New(runner *workflow.Runner, definitions map[string]workflow.Definition, version string, logger *slog.Logger) *Server {
	s := &Server{
		runner:      runner,
		definitions: definitions,
		logger:      logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"crewflow",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("marshal result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// crewflow://workflows: the workflow catalog.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"crewflow://workflows",
			"Workflow Catalog",
			mcplib.WithResourceDescription("All registered workflow definitions with their stages and approval gates"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleWorkflowCatalog,
	)
}

func (s *Server) handleWorkflowCatalog(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	defs := make([]any, 0, len(s.definitions))
	names := make([]string, 0, len(s.definitions))
	for name := range s.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		defs = append(defs, s.definitions[name].Clone())
	}

	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal workflow catalog: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "crewflow://workflows",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDefinition represents a tool that can be registered with the MCP server
type ToolDefinition struct {
	// Name is the name of the tool
	Name string

	// Description is a brief description of what the tool does
	Description string

	// Handler is the function that will be called when the tool is invoked
	Handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

	// Parameters is the JSON schema for the tool's arguments
	Parameters map[string]interface{}
}

// registerToolsDeclarative exposes every registry tool over MCP. The
// definitions and argument validation live in the registry, so the same
// three tools behave identically whether the LLM or an MCP client calls them.
func (s *Server) registerToolsDeclarative() {
	var defs []ToolDefinition
	for _, def := range s.registry.List() {
		name := def.Name
		defs = append(defs, ToolDefinition{
			Name:        name,
			Description: def.Description,
			Parameters:  def.Parameters,
			Handler: func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return s.handleToolCall(ctx, name, request)
			},
		})
	}

	for _, def := range defs {
		registerTool(s.mcpServer, def)
	}
}

// handleToolCall dispatches an MCP tool invocation through the registry.
func (s *Server) handleToolCall(ctx context.Context, name string, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Debugf("Handling MCP %s request", name)

	result, err := s.registry.Dispatch(ctx, name, string(request.Params.Arguments))
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: result.Text(),
			},
		},
	}, nil
}

// registerTool registers a tool with the MCP server
func registerTool(srv *mcp.Server, def ToolDefinition) {
	tool := &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.Parameters,
	}
	srv.AddTool(tool, def.Handler)
}

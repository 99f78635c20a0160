// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes modelhub import tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/models"
	"github.com/starford/modelhub/internal/registry"
)

const rulesURI = "modelhub://import-rules"

// Server wraps the MCP server with modelhub tools.
type Server struct {
	mcp *server.MCPServer
	svc *registry.Service
}

// New creates a new MCP server with all modelhub tools registered.
func New(svc *registry.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Modelhub",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("clone_model",
		mcp.WithDescription("Clone a git repository into the shared models directory, make it read-only "+
			"and register it in the catalog. Read the import rules first via get_import_rules "+
			"or the "+rulesURI+" resource."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Repository URL (https, ssh or local path)")),
		mcp.WithString("name", mcp.Description("Optional model name; derived from the URL when empty")),
	), s.cloneModel)

	s.mcp.AddTool(mcp.NewTool("copy_local_model",
		mcp.WithDescription("Copy a local directory into the shared models directory, make it read-only "+
			"and register it in the catalog."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the directory to import")),
		mcp.WithString("name", mcp.Description("Optional model name; defaults to the directory name")),
	), s.copyLocalModel)

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List every registered model with its source, origin and location."),
		mcp.WithString("format", mcp.Description("'text' (default) or 'json'")),
	), s.listModels)

	s.mcp.AddTool(mcp.NewTool("get_import_rules",
		mcp.WithDescription("Returns the naming, uniqueness and protection rules for imports."),
	), s.getImportRules)

	// Resource: import rules.
	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Import Rules",
			mcp.WithResourceDescription("How models are named, deduplicated and protected."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readImportRulesResource,
	)

	return s
}

// Listen serves MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError renders err as "<kind>: <message>".
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", apperr.KindOf(err), err))
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func (s *Server) cloneModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Clone(ctx, url, optionalString(req, "name"))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(res.Message()), nil
}

func (s *Server) copyLocalModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.CopyLocal(ctx, path, optionalString(req, "name"))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(res.Message()), nil
}

func (s *Server) listModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := s.svc.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if optionalString(req, "format") == "json" {
		ms := listing.Models
		if ms == nil {
			ms = []models.Model{}
		}
		out, err := json.MarshalIndent(ms, "", "  ")
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
	return mcp.NewToolResultText(listing.String()), nil
}

func (s *Server) getImportRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportRules), nil
}

func (s *Server) readImportRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     ImportRules,
		},
	}, nil
}

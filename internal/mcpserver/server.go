// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Eihwaz tagging tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/eihwaz/internal/relation"
	"github.com/starford/eihwaz/internal/tagservice"
)

// Server wraps the MCP server with Eihwaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *tagservice.Service
}

// New creates a new MCP server with all Eihwaz tools registered.
func New(svc *tagservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Eihwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every visible tag with its kind, full hierarchy path, and file count."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("filter_files",
		mcp.WithDescription("Return every file assigned to any of the given tags or their descendants (union mode)."),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma-separated tag names or aliases")),
	), s.filterFiles)

	s.mcp.AddTool(mcp.NewTool("intersect_files",
		mcp.WithDescription("Return the files common to every given tag."),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma-separated tag names or aliases")),
	), s.intersectFiles)

	s.mcp.AddTool(mcp.NewTool("inspect_file",
		mcp.WithDescription("Return the full tag paths assigned to a file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path to inspect")),
	), s.inspectFile)

	s.mcp.AddTool(mcp.NewTool("assign_tag",
		mcp.WithDescription("Assign a tag to a file. Constraint rejections (dud tags, exclusivity conflicts) are reported in the result."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag name or alias")),
	), s.assignTag)

	s.mcp.AddTool(mcp.NewTool("remove_tag",
		mcp.WithDescription("Remove a tag from a file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag name or alias")),
	), s.removeTag)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Search tag paths and tracked file paths."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.search)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.ListTags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(tags, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) filterFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := splitTags(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := s.svc.Filter(ctx, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(files, "\n")), nil
}

func (s *Server) intersectFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := splitTags(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := s.svc.Intersect(ctx, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(files, "\n")), nil
}

func (s *Server) inspectFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.Inspect(ctx, []string{path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(out) == 0 {
		return mcp.NewToolResultText(""), nil
	}
	return mcp.NewToolResultText(strings.Join(out[0].Tags, "\n")), nil
}

func (s *Server) assignTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, relation.OpAdd)
}

func (s *Server) removeTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.mutate(ctx, req, relation.OpRemove)
}

func (s *Server) mutate(ctx context.Context, req mcp.CallToolRequest, op relation.Op) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reports, err := s.svc.FileToTags(ctx, op, path, []string{tag})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lines := make([]string, len(reports))
	for i, rep := range reports {
		if rep.Rejected() {
			lines[i] = rep.Err.Error()
		} else {
			lines[i] = rep.Result.String()
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func splitTags(req mcp.CallToolRequest) ([]string, error) {
	raw, err := req.RequireString("tags")
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("tags must name at least one tag")
	}
	return tags, nil
}

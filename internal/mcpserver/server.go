// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes pathnote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pathnote/internal/adminservice"
	"github.com/starford/pathnote/internal/apperr"
	"github.com/starford/pathnote/internal/models"
	"github.com/starford/pathnote/internal/noteservice"
)

const (
	exportFormatURI = "pathnote://export-format"
	maxResults      = 100
)

// Server wraps the MCP server with pathnote tools.
type Server struct {
	mcp   *server.MCPServer
	notes *noteservice.Service
	admin *adminservice.Service
}

// New creates a new MCP server with all pathnote tools registered. Reads
// and saves go through the note service, so read locks and the cache
// policy apply exactly as they do over HTTP.
func New(notes *noteservice.Service, admin *adminservice.Service, version string) *Server {
	s := &Server{notes: notes, admin: admin}

	s.mcp = server.NewMCPServer(
		"pathnote",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by path. Read-locked notes need their password."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path (letters, digits, '-' and '_')")),
		mcp.WithString("password", mcp.Description("Password of a read-locked note")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Create or replace the content of a note. "+
			"Content is rich-text HTML; see the get_export_format tool or the "+
			exportFormatURI+" resource for the rules."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("HTML content")),
		mcp.WithString("password", mcp.Description("Password of a locked note")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently updated first."),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive substring search over note paths and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_export_format",
		mcp.WithDescription("Returns the export document format and the path and content rules."),
	), s.getExportFormat)

	s.mcp.AddResource(
		mcp.NewResource(exportFormatURI, "Export Format",
			mcp.WithResourceDescription("Export/backup document format and note rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportFormatResource,
	)

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

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pw := req.GetString("password", "")

	v, err := s.notes.Get(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if !v.Exists {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if v.RequiresPassword {
		if pw == "" {
			return mcp.NewToolResultError(fmt.Sprintf("%s is read-locked; pass its password", path)), nil
		}
		if v, err = s.notes.Unlock(ctx, path, pw); err != nil {
			return toolError(err), nil
		}
	}
	return jsonResult(v)
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.notes.Save(ctx, path, body, req.GetString("password", ""))
	if err != nil {
		return toolError(err), nil
	}
	verb := "updated"
	if res.Created {
		verb = "created"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", verb, res.Path)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.admin.List(ctx, adminservice.ListQuery{
		Page:  req.GetInt("page", 1),
		Limit: clampLimit(req.GetInt("limit", 0)),
	})
	if err != nil {
		return toolError(err), nil
	}
	redact(list.Notes)
	return jsonResult(list)
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	list, err := s.admin.List(ctx, adminservice.ListQuery{Query: query, Limit: clampLimit(limit)})
	if err != nil {
		return toolError(err), nil
	}
	redact(list.Notes)
	return jsonResult(list)
}

func (s *Server) getExportFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ExportFormatContract), nil
}

func (s *Server) readExportFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      exportFormatURI,
			MIMEType: "text/markdown",
			Text:     ExportFormatContract,
		},
	}, nil
}

// redact drops excerpts of read-locked notes.
func redact(items []adminservice.NoteSummary) {
	for i := range items {
		if items[i].LockType == models.LockRead {
			items[i].Excerpt = ""
		}
	}
}

// clampLimit caps n at maxResults. Non-positive values select the store default.
func clampLimit(n int) int {
	return min(n, maxResults)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError reports client errors verbatim and hides internal ones.
func toolError(err error) *mcp.CallToolResult {
	for _, known := range []error{
		apperr.ErrInvalidPath, apperr.ErrInvalidInput, apperr.ErrEmptyContent,
		apperr.ErrNotLocked, apperr.ErrPasswordRequired, apperr.ErrInvalidPassword,
		apperr.ErrNotFound,
	} {
		if errors.Is(err, known) {
			return mcp.NewToolResultError(err.Error())
		}
	}
	return mcp.NewToolResultError("internal error")
}

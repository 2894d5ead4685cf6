// Package mcpserver exposes the index manager and search engine over the
// Model Context Protocol, registering each tool handler with
// mcp.AddTool against the shared *app.App.
package mcpserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencoderank/coderank/internal/app"
	"github.com/opencoderank/coderank/pkg/version"
)

// Server wraps an *app.App with the MCP tool surface.
type Server struct {
	mcp *mcp.Server
	app *app.App

	mu    sync.Mutex
	tasks map[string]*taskState
}

// New builds a Server and registers its tools. a must already be open
// (see app.Open).
func New(a *app.App) *Server {
	s := &Server{
		app:   a,
		tasks: make(map[string]*taskState),
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "coderank",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP requests over stdio until ctx is cancelled or the
// transport closes.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_codebase",
		Description: "Index (or reindex) the server's project root, using content hashing to skip unchanged files. The path input is reported back and does not choose the directory. Run this before search_code if the index may be stale.",
	}, s.handleIndexCodebase)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid lexical+semantic search over the indexed codebase. Returns ranked chunks with file path, line range, kind, and a relevance score.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Poll the status of an async index_codebase task by its task_id.",
	}, s.handleIndexStatus)

	s.app.Logger.Debug("mcp tools registered", slog.Int("count", 3))
}

// Package mcpserver exposes snapshots as Model Context Protocol tools over
// stdio, for `pgtree mcp`.
//
// Tools:
//
//	snapshot      renders a snapshot (tree by default)
//	list_schemas  lists schema names
//
// Each call opens its own catalog session.
package mcpserver

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/koustreak/pgtree/internal/emit"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/sink"
	"github.com/koustreak/pgtree/internal/snapshot"
	"github.com/koustreak/pgtree/internal/walk"
)

// Server answers tool calls with catalogs handed out by an Opener.
type Server struct {
	open snapshot.Opener
	log  *logger.Logger
	mcp  *server.MCPServer
}

// New registers the tools. version is reported to clients.
func New(open snapshot.Opener, log *logger.Logger, version string) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		open: open,
		log:  log,
		mcp:  server.NewMCPServer("pgtree", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("snapshot",
		mcp.WithDescription("Describe PostgreSQL schemas: relations, columns and optionally indexes, foreign keys, triggers and functions"),
		mcp.WithString("schema",
			mcp.Description("Schema name or pattern; empty selects every non-system schema"),
		),
		mcp.WithString("match",
			mcp.Description("How schema is matched (default: exact)"),
			mcp.Enum("exact", "substring", "regex"),
		),
		mcp.WithBoolean("include_system",
			mcp.Description("Include pg_* schemas and information_schema"),
		),
		mcp.WithString("include",
			mcp.Description("Comma-separated extras: views, matviews, foreign_tables, indexes, foreign_keys, triggers, functions or all"),
		),
		mcp.WithString("format",
			mcp.Description("Output format (default: tree)"),
			mcp.Enum("tree", "json"),
		),
	), s.handleSnapshot)

	s.mcp.AddTool(mcp.NewTool("list_schemas",
		mcp.WithDescription("List the schema names of the database"),
		mcp.WithBoolean("include_system",
			mcp.Description("Include pg_* schemas and information_schema"),
		),
	), s.handleListSchemas)

	return s
}

// Serve reads requests from in and writes responses to out until ctx is
// cancelled or in is exhausted.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("starting mcp server")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := parseRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cat, err := s.open(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer func() { _ = cat.Close(context.WithoutCancel(ctx)) }()

	var buf bytes.Buffer
	counts, err := snapshot.Write(ctx, cat, req, sink.Stream(&buf), s.log)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.log.DebugWith("snapshot tool", counts.Fields())

	if buf.Len() == 0 {
		return mcp.NewToolResultText("no schema matched"), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) handleListSchemas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cat, err := s.open(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer func() { _ = cat.Close(context.WithoutCancel(ctx)) }()

	it, err := cat.Schemas(ctx, request.GetBool("include_system", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer it.Close()

	var names []string
	for it.Next() {
		names = append(names, it.Value())
	}
	if err := it.Err(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func parseRequest(request mcp.CallToolRequest) (snapshot.Request, error) {
	var req snapshot.Request

	format, err := emit.ParseFormat(request.GetString("format", "tree"))
	if err != nil {
		return req, err
	}
	req.Format = format
	req.Pretty = format.Structured()

	mode, err := walk.ParseMode(request.GetString("match", ""))
	if err != nil {
		return req, err
	}
	req.Selector = walk.Selector{
		Value:         request.GetString("schema", ""),
		Mode:          mode,
		IncludeSystem: request.GetBool("include_system", false),
	}
	if err := req.Selector.Validate(); err != nil {
		return req, err
	}

	if req.Filters, err = walk.ParseFilters(request.GetString("include", "")); err != nil {
		return req, err
	}
	return req, nil
}

// Package mcpserver exposes the security tool catalog over the Model Context
// Protocol. Calls run through the same dispatch path as agent runs, so
// unknown tools, argument validation, policy denials and handler failures
// come back as the familiar result texts.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/tool"
)

// Caller runs tools outside an agent run. *secmesh.SecMesh implements it.
type Caller interface {
	Tools() *tool.Registry
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Options configures the Server.
type Options struct {
	Name    string
	Version string
	Logger  logging.Logger
}

// Server wraps an MCP server with every catalog tool registered.
type Server struct {
	mcp    *server.MCPServer
	caller Caller
	logger logging.Logger
}

// New registers every tool of c.Tools().
func New(c Caller, optFns ...func(o *Options)) (*Server, error) {
	opts := Options{
		Name:    "secmesh",
		Version: "0.1.0",
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		mcp:    server.NewMCPServer(opts.Name, opts.Version, server.WithToolCapabilities(false)),
		caller: c,
		logger: logging.OrNoOp(opts.Logger),
	}

	for _, t := range c.Tools().Tools() {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("mcpserver: schema of %s: %w", t.Name(), err)
		}

		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.handler(t.Name()))
	}

	return s, nil
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC over in/out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp.serving", "tools", s.caller.Tools().Len())
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := s.caller.CallTool(ctx, name, req.GetArguments())
		if err != nil {
			s.logger.Error("mcp.call.failed", "tool", name, "error", err.Error())
			return mcp.NewToolResultError(err.Error()), nil
		}

		if failed(out) {
			return mcp.NewToolResultError(out), nil
		}

		return mcp.NewToolResultText(out), nil
	}
}

// failed reports whether out is a dispatch failure text.
func failed(out string) bool {
	return strings.HasPrefix(out, "Unknown tool: ") || strings.HasPrefix(out, "Error executing tool ")
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"sort"
	"time"

	"github.com/aschepis/ollama-mcp/tools"
	"github.com/aschepis/ollama-mcp/tools/schemas"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const shutdownTimeout = 5 * time.Second

// Server exposes registry tools over MCP.
type Server struct {
	mcpServer *server.MCPServer
	registry  *tools.Registry
	host      string
	logger    zerolog.Logger
}

// NewServer registers one MCP tool per schema. Every schema must have a
// registered handler. host is reported in connection error hints.
func NewServer(name, version string, registry *tools.Registry, toolSchemas map[string]schemas.ToolSchema, host string, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		registry: registry,
		host:     host,
		logger:   logger.With().Str("component", "mcpServer").Logger(),
	}

	names := lo.Keys(toolSchemas)
	sort.Strings(names)
	for _, toolName := range names {
		if !registry.Has(toolName) {
			return nil, fmt.Errorf("no handler registered for tool %q", toolName)
		}
		schema := toolSchemas[toolName]
		raw, err := json.Marshal(schema.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %q: %w", toolName, err)
		}
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(toolName, schema.Description, raw), s.handler(toolName))
	}
	s.logger.Info().Int("tools", len(names)).Msg("MCP server created")
	return s, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return s.errorResult(toolName, err), nil
		}

		result, err := s.registry.Handle(ctx, toolName, args)
		if err != nil {
			return s.errorResult(toolName, err), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return s.errorResult(toolName, fmt.Errorf("failed to encode result: %w", err)), nil
		}
		s.logger.Debug().Str("tool", toolName).Dur("elapsed", time.Since(start)).Msg("Tool call succeeded")
		return mcp.NewToolResultText(string(data)), nil
	}
}

func (s *Server) errorResult(toolName string, err error) *mcp.CallToolResult {
	payload := tools.ErrorPayload(err, s.host)
	s.logger.Error().Str("tool", toolName).Interface("kind", payload["kind"]).Err(err).Msg("Tool call failed")
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}

// ServeStdio serves MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(stdlog.New(s.logger, "", 0))

	s.logger.Info().Msg("Serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("stdio transport: %w", err)
}

// ServeHTTP serves streamable-HTTP MCP on addr until ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(addr)
	}()
	s.logger.Info().Str("address", addr).Msg("Serving MCP over HTTP")

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("Shutting down HTTP transport")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http transport shutdown: %w", err)
		}
		return nil
	}
}

package mcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// CallResult is the text content of a tool call.
type CallResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

// Client talks to a running MCP server. The CLI uses it to list and call
// tools on a server started with the http transport.
type Client struct {
	client *client.Client
	target string
	logger zerolog.Logger
}

// NewHTTPClient creates a client for a streamable-HTTP MCP endpoint.
func NewHTTPClient(logger zerolog.Logger, baseURL string) (*Client, error) {
	logger = logger.With().Str("component", "mcpClient").Logger()
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	mcpClient, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}
	logger.Debug().Str("base_url", baseURL).Msg("Created HTTP MCP client")
	return &Client{client: mcpClient, target: baseURL, logger: logger}, nil
}

// NewInProcessClient creates a client wired directly to s.
func NewInProcessClient(logger zerolog.Logger, s *Server) (*Client, error) {
	mcpClient, err := client.NewInProcessClient(s.MCPServer())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process MCP client: %w", err)
	}
	return &Client{
		client: mcpClient,
		target: "in-process",
		logger: logger.With().Str("component", "mcpClient").Logger(),
	}, nil
}

// Start connects and performs the initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client for %s: %w", c.target, err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "ollama-mcp-cli",
				Version: "1.0.0",
			},
		},
	}
	result, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session with %s: %w", c.target, err)
	}
	c.logger.Debug().
		Str("target", c.target).
		Str("server", result.ServerInfo.Name).
		Str("protocol_version", result.ProtocolVersion).
		Msg("MCP session initialized")
	return nil
}

// ListTools returns all tools available from the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return lo.Map(result.Tools, func(tool mcp.Tool, _ int) ToolDefinition {
		inputSchema := map[string]any{"type": tool.InputSchema.Type}
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		}
	}), nil
}

// CallTool invokes a tool and returns its text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}

	texts := lo.FilterMap(result.Content, func(content mcp.Content, _ int) (string, bool) {
		if text, ok := mcp.AsTextContent(content); ok {
			return text.Text, true
		}
		return "", false
	})
	return &CallResult{
		Text:    strings.Join(texts, "\n"),
		IsError: result.IsError,
	}, nil
}

// Close closes the connection to the MCP server.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

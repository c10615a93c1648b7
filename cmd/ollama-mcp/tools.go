package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aschepis/ollama-mcp/logger"
	"github.com/aschepis/ollama-mcp/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080/mcp"

func connectRemote(ctx context.Context, url string) (*mcp.Client, error) {
	c, err := mcp.NewHTTPClient(logger.New(os.Stderr, zerolog.WarnLevel), url)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func newToolsCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of a server running with the http transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connectRemote(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck // nothing to do on close failure

			defs, err := c.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-26s %s\n", d.Name, d.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", defaultServerURL, "MCP endpoint URL")
	return cmd
}

func newCallCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call a tool on a server running with the http transport",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var toolArgs map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			c, err := connectRemote(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck // nothing to do on close failure

			res, err := c.CallTool(cmd.Context(), args[0], toolArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if res.IsError {
				return fmt.Errorf("tool %s returned an error", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", defaultServerURL, "MCP endpoint URL")
	return cmd
}

package main

import (
	"fmt"

	"github.com/aschepis/ollama-mcp/config"
	"github.com/aschepis/ollama-mcp/logger"
	"github.com/aschepis/ollama-mcp/ollama"
	"github.com/spf13/cobra"
)

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the Ollama backend is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.validate(); err != nil {
				return err
			}
			cfg, err := config.Load(root.configPath, root.overrides())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			log := logger.New(cmd.ErrOrStderr(), logger.ParseLevel(cfg.Log.Level))
			client, err := ollama.NewClient(cfg.ClientConfig(), log)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.HealthCheck(cmd.Context()) {
				return fmt.Errorf("Ollama at %s is not reachable", client.Host())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ollama at %s is reachable\n", client.Host())
			return nil
		},
	}
}

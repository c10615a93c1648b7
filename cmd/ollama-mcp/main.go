package main

import (
	"fmt"
	"os"

	"github.com/aschepis/ollama-mcp/config"
	"github.com/spf13/cobra"
)

var version = "dev"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	host        string
	logLevel    string
	logFile     string
	pretty      bool
	logRequests bool
}

// overrides turns the set flags into a config layer; unset flags stay zero
// and are ignored by the merge.
func (o *rootOptions) overrides() *config.Config {
	return &config.Config{
		Ollama: config.OllamaConfig{Host: o.host},
		Log: config.LogConfig{
			Level:       o.logLevel,
			File:        o.logFile,
			Pretty:      o.pretty,
			LogRequests: o.logRequests,
		},
	}
}

func (o *rootOptions) validate() error {
	if o.logFile != "" && o.pretty {
		return fmt.Errorf("--log-file and --pretty are mutually exclusive")
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCmd(opts)

	root := &cobra.Command{
		Use:           "ollama-mcp",
		Short:         "MCP server exposing an Ollama backend as tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Without a subcommand the server runs, so MCP hosts can launch the bare binary.
		RunE: serve.RunE,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: $"+config.ConfigPathEnv+")")
	flags.StringVar(&opts.host, "host", "", "Ollama base URL (overrides OLLAMA_HOST)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARNING, ERROR, CRITICAL")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs on stderr")
	flags.BoolVar(&opts.logRequests, "log-requests", false, "Log every Ollama request and response prefix")

	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newHealthCmd(opts),
		newToolsCmd(),
		newCallCmd(),
		newConfigCmd(opts),
	)
	return root
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aschepis/ollama-mcp/cache"
	"github.com/aschepis/ollama-mcp/config"
	"github.com/aschepis/ollama-mcp/logger"
	"github.com/aschepis/ollama-mcp/mcp"
	"github.com/aschepis/ollama-mcp/ollama"
	"github.com/aschepis/ollama-mcp/tools"
	"github.com/aschepis/ollama-mcp/tools/schemas"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const serverName = "ollama-mcp-server"

type serveOptions struct {
	transport string
	address   string
	noCache   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.validate(); err != nil {
				return err
			}
			overrides := root.overrides()
			overrides.Server = config.ServerConfig{Transport: opts.transport, Address: opts.address}
			cfg, err := config.Load(root.configPath, overrides)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if opts.noCache {
				cfg.Cache.Enabled = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&opts.transport, "transport", "", "MCP transport: stdio or http (overrides OLLAMA_MCP_TRANSPORT)")
	cmd.Flags().StringVar(&opts.address, "address", "", "Listen address for the http transport (overrides OLLAMA_MCP_ADDRESS)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Disable the model listing cache")
	return cmd
}

// serve wires the components, runs the selected transport until ctx ends or
// the transport stops, then shuts everything down in reverse order.
func serve(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	log, err := logger.InitWithOptions(cfg.Log.Level, cfg.Log.File, cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.Info().
		Str("version", version).
		Str("host", cfg.Ollama.Host).
		Str("transport", cfg.Server.Transport).
		Bool("cache", cfg.Cache.Enabled).
		Msg("Starting Ollama MCP server")

	client, err := ollama.NewClient(cfg.ClientConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to create Ollama client: %w", err)
	}
	client.Connect()
	defer client.Close()

	if client.HealthCheck(ctx) {
		log.Info().Str("host", client.Host()).Msg("Successfully connected to Ollama")
	} else {
		log.Warn().Str("host", client.Host()).Msg("Cannot connect to Ollama. Server will start but some operations may fail")
	}

	var (
		store   *cache.Cache[any]
		sweeper *cache.Sweeper
	)
	if cfg.Cache.Enabled {
		store = cache.New[any](cfg.Cache.TTL.D(), cache.WithLogger(log))
		sweeper, err = cache.NewSweeper(cfg.Cache.SweepInterval.D(), log, store)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	registry := tools.NewRegistry(log)
	registry.RegisterOllamaTools(client, tools.CacheOptions{
		Store:            store,
		ModelListTTL:     cfg.Cache.TTL.D(),
		RunningModelsTTL: cfg.Cache.RunningModelsTTL.D(),
	})

	srv, err := mcp.NewServer(serverName, version, registry, schemas.All(), client.Host(), log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The stdio transport ends when the host closes stdin; take the rest down with it.
		defer cancel()
		switch cfg.Server.Transport {
		case config.TransportHTTP:
			return srv.ServeHTTP(gctx, cfg.Server.Address)
		default:
			return srv.ServeStdio(gctx, in, out)
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down Ollama MCP server")
		if sweeper == nil {
			return nil
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		return sweeper.Stop(stopCtx)
	})

	err = g.Wait()
	if store != nil {
		store.Clear()
	}
	client.Close()
	log.Info().Msg("Ollama MCP server stopped")
	return err
}

package config

import (
	"github.com/aschepis/ollama-mcp/ollama"
)

// ClientConfig converts the ollama and log sections into executor settings.
func (c *Config) ClientConfig() ollama.Config {
	cfg := ollama.DefaultConfig()
	cfg.Host = c.Ollama.Host
	cfg.RequestTimeout = c.Ollama.RequestTimeout.D()
	cfg.ConnectionTimeout = c.Ollama.ConnectionTimeout.D()
	cfg.MaxRetries = c.Ollama.MaxRetries
	cfg.RetryDelay = c.Ollama.RetryDelay.D()
	if c.Ollama.MaxConnections > 0 {
		cfg.MaxConnections = c.Ollama.MaxConnections
	}
	if c.Ollama.MaxIdleConnections > 0 {
		cfg.MaxIdleConnections = c.Ollama.MaxIdleConnections
	}
	cfg.LogRequests = c.Log.LogRequests
	return cfg
}

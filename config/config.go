package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the environment variable holding an optional config file path.
const ConfigPathEnv = "OLLAMA_MCP_CONFIG"

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// LogLevels are the accepted values of log.level, compared case-insensitively.
var LogLevels = []string{"DEBUG", "INFO", "WARNING", "WARN", "ERROR", "CRITICAL"}

// OllamaConfig configures the backend connection and retry policy.
type OllamaConfig struct {
	Host               string   `yaml:"host,omitempty" env:"OLLAMA_HOST"`                             // Ollama base URL (default: "http://localhost:11434")
	RequestTimeout     Duration `yaml:"request_timeout,omitempty" env:"OLLAMA_REQUEST_TIMEOUT"`       // Per-attempt deadline
	ConnectionTimeout  Duration `yaml:"connection_timeout,omitempty" env:"OLLAMA_CONNECTION_TIMEOUT"` // Dial deadline
	MaxRetries         int      `yaml:"max_retries" env:"OLLAMA_MAX_RETRIES"`                         // Retries after the first attempt
	RetryDelay         Duration `yaml:"retry_delay,omitempty" env:"OLLAMA_RETRY_DELAY"`               // First backoff wait, doubled per retry
	MaxConnections     int      `yaml:"max_connections,omitempty" env:"OLLAMA_MAX_CONNECTIONS"`
	MaxIdleConnections int      `yaml:"max_idle_connections,omitempty" env:"OLLAMA_MAX_IDLE_CONNECTIONS"`
}

// CacheConfig configures the response cache for model listings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled" env:"OLLAMA_ENABLE_CACHE"`
	TTL              Duration `yaml:"ttl,omitempty" env:"OLLAMA_CACHE_TTL"` // Default entry lifetime, used for the model list
	RunningModelsTTL Duration `yaml:"running_models_ttl,omitempty" env:"OLLAMA_CACHE_RUNNING_MODELS_TTL"`
	SweepInterval    Duration `yaml:"sweep_interval,omitempty" env:"OLLAMA_CACHE_SWEEP_INTERVAL"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level,omitempty" env:"OLLAMA_LOG_LEVEL"`
	File        string `yaml:"file,omitempty" env:"OLLAMA_LOG_FILE"` // Empty logs to stderr
	Pretty      bool   `yaml:"pretty,omitempty" env:"OLLAMA_LOG_PRETTY"`
	LogRequests bool   `yaml:"log_requests,omitempty" env:"OLLAMA_LOG_REQUESTS"`
}

// ServerConfig selects the MCP transport.
type ServerConfig struct {
	Transport string `yaml:"transport,omitempty" env:"OLLAMA_MCP_TRANSPORT"` // "stdio" or "http"
	Address   string `yaml:"address,omitempty" env:"OLLAMA_MCP_ADDRESS"`     // Listen address for the http transport
}

// Config is the complete process configuration.
type Config struct {
	Ollama OllamaConfig `yaml:"ollama"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Ollama: OllamaConfig{
			Host:               "http://localhost:11434",
			RequestTimeout:     Duration(30 * time.Second),
			ConnectionTimeout:  Duration(5 * time.Second),
			MaxRetries:         3,
			RetryDelay:         Duration(time.Second),
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Cache: CacheConfig{
			Enabled:          true,
			TTL:              Duration(300 * time.Second),
			RunningModelsTTL: Duration(30 * time.Second),
			SweepInterval:    Duration(time.Minute),
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			Address:   ":8080",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, the
// environment and finally overrides (typically CLI flags, zero fields ignored),
// then validates it. An empty path falls back to $OLLAMA_MCP_CONFIG; if that is
// also empty no file is read.
func Load(path string, overrides *Config) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		expandedPath := expandPath(path)
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		// Decoding onto the defaults keeps every key the file leaves out.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if overrides != nil {
		if err := mergo.Merge(&cfg, *overrides, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and normalizes the host and log level in place.
func (c *Config) Validate() error {
	host := strings.TrimSpace(c.Ollama.Host)
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return fmt.Errorf("ollama.host must start with http:// or https://, got %q", c.Ollama.Host)
	}
	c.Ollama.Host = strings.TrimRight(host, "/")

	if c.Ollama.RequestTimeout <= 0 {
		return fmt.Errorf("ollama.request_timeout must be positive, got %s", c.Ollama.RequestTimeout)
	}
	if c.Ollama.ConnectionTimeout <= 0 {
		return fmt.Errorf("ollama.connection_timeout must be positive, got %s", c.Ollama.ConnectionTimeout)
	}
	if c.Ollama.MaxRetries < 0 {
		return fmt.Errorf("ollama.max_retries must be >= 0, got %d", c.Ollama.MaxRetries)
	}
	if c.Ollama.RetryDelay < 0 {
		return fmt.Errorf("ollama.retry_delay must be >= 0, got %s", c.Ollama.RetryDelay)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.RunningModelsTTL <= 0 {
		return fmt.Errorf("cache.running_models_ttl must be positive, got %s", c.Cache.RunningModelsTTL)
	}

	level := strings.ToUpper(strings.TrimSpace(c.Log.Level))
	if !lo.Contains(LogLevels, level) {
		return fmt.Errorf("log.level must be one of %s, got %q", strings.Join(LogLevels, ", "), c.Log.Level)
	}
	c.Log.Level = level

	c.Server.Transport = strings.ToLower(strings.TrimSpace(c.Server.Transport))
	if !lo.Contains([]string{TransportStdio, TransportHTTP}, c.Server.Transport) {
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Server.Transport)
	}
	if c.Server.Transport == TransportHTTP && c.Server.Address == "" {
		return fmt.Errorf("server.address is required for the http transport")
	}
	return nil
}

// Save writes cfg as YAML to path, creating the directory if needed.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

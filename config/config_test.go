package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, 30*time.Second, cfg.Ollama.RequestTimeout.D())
	assert.Equal(t, 5*time.Second, cfg.Ollama.ConnectionTimeout.D())
	assert.Equal(t, 3, cfg.Ollama.MaxRetries)
	assert.Equal(t, time.Second, cfg.Ollama.RetryDelay.D())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL.D())
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.False(t, cfg.Log.LogRequests)
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434/")
	t.Setenv("OLLAMA_REQUEST_TIMEOUT", "45")
	t.Setenv("OLLAMA_CONNECTION_TIMEOUT", "2.5")
	t.Setenv("OLLAMA_MAX_RETRIES", "0")
	t.Setenv("OLLAMA_RETRY_DELAY", "250ms")
	t.Setenv("OLLAMA_LOG_LEVEL", "debug")
	t.Setenv("OLLAMA_LOG_REQUESTS", "true")
	t.Setenv("OLLAMA_ENABLE_CACHE", "false")
	t.Setenv("OLLAMA_CACHE_TTL", "60")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	assert.Equal(t, 45*time.Second, cfg.Ollama.RequestTimeout.D())
	assert.Equal(t, 2500*time.Millisecond, cfg.Ollama.ConnectionTimeout.D())
	assert.Equal(t, 0, cfg.Ollama.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Ollama.RetryDelay.D())
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.True(t, cfg.Log.LogRequests)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.D())
}

func TestLoad_FileThenEnvThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ollama-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ollama:
  host: http://file-host:11434
  max_retries: 5
  retry_delay: 2
cache:
  ttl: 10m
log:
  level: warning
server:
  transport: http
  address: 127.0.0.1:9000
`), 0o600))

	t.Setenv(ConfigPathEnv, "")
	t.Setenv("OLLAMA_MAX_RETRIES", "7")

	cfg, err := Load(path, &Config{Server: ServerConfig{Address: "127.0.0.1:9100"}})
	require.NoError(t, err)

	assert.Equal(t, "http://file-host:11434", cfg.Ollama.Host)
	assert.Equal(t, 7, cfg.Ollama.MaxRetries, "environment wins over the file")
	assert.Equal(t, 2*time.Second, cfg.Ollama.RetryDelay.D())
	assert.Equal(t, 30*time.Second, cfg.Ollama.RequestTimeout.D(), "keys missing from the file keep defaults")
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL.D())
	assert.Equal(t, "WARNING", cfg.Log.Level)
	assert.Equal(t, TransportHTTP, cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Address, "overrides win over everything")
}

func TestLoad_PathFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ollama:\n  host: https://remote\n"), 0o600))
	t.Setenv(ConfigPathEnv, path)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://remote", cfg.Ollama.Host)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv("OLLAMA_REQUEST_TIMEOUT", "soon")
	_, err := Load("", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"host without scheme", func(c *Config) { c.Ollama.Host = "localhost:11434" }, true},
		{"ftp host", func(c *Config) { c.Ollama.Host = "ftp://x" }, true},
		{"https host", func(c *Config) { c.Ollama.Host = "https://x/" }, false},
		{"zero request timeout", func(c *Config) { c.Ollama.RequestTimeout = 0 }, true},
		{"negative connection timeout", func(c *Config) { c.Ollama.ConnectionTimeout = Seconds(-1) }, true},
		{"negative retries", func(c *Config) { c.Ollama.MaxRetries = -1 }, true},
		{"zero retries", func(c *Config) { c.Ollama.MaxRetries = 0 }, false},
		{"unknown level", func(c *Config) { c.Log.Level = "VERBOSE" }, true},
		{"critical level", func(c *Config) { c.Log.Level = "critical" }, false},
		{"unknown transport", func(c *Config) { c.Server.Transport = "grpc" }, true},
		{"http without address", func(c *Config) {
			c.Server.Transport = TransportHTTP
			c.Server.Address = ""
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_TrimsHost(t *testing.T) {
	cfg := Default()
	cfg.Ollama.Host = "http://localhost:11434///"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"90s", 90 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.D())
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Ollama.Host = "http://saved:1"
	cfg.Ollama.RetryDelay = Duration(1500 * time.Millisecond)
	require.NoError(t, Save(&cfg, path))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://saved:1", loaded.Ollama.Host)
	assert.Equal(t, 1500*time.Millisecond, loaded.Ollama.RetryDelay.D())
}

func TestClientConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.LogRequests = true
	cc := cfg.ClientConfig()
	assert.Equal(t, cfg.Ollama.Host, cc.Host)
	assert.Equal(t, 30*time.Second, cc.RequestTimeout)
	assert.Equal(t, 3, cc.MaxRetries)
	assert.Equal(t, 10, cc.MaxConnections)
	assert.True(t, cc.LogRequests)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AgentsFile = "agents.yaml"
	cfg.Providers = []ProviderConfig{{Name: "anthropic", APIKey: "sk-test"}}
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("should accept a minimal valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("should require a provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers = nil
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one provider")
	})

	t.Run("should reject unsupported backends", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers = []ProviderConfig{{Name: "bard", APIKey: "x"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("should require api keys", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers = []ProviderConfig{{Name: "openai"}}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})

	t.Run("should require an agents manifest", func(t *testing.T) {
		cfg := validConfig()
		cfg.AgentsFile = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("should validate server transports", func(t *testing.T) {
		tests := []struct {
			name   string
			server ServerConfig
			ok     bool
		}{
			{"valid stdio", ServerConfig{Name: "a", Transport: "stdio", Command: "srv"}, true},
			{"valid websocket", ServerConfig{Name: "a", Transport: "websocket", URL: "ws://localhost:1234"}, true},
			{"stdio without command", ServerConfig{Name: "a", Transport: "stdio"}, false},
			{"websocket without url", ServerConfig{Name: "a", Transport: "websocket"}, false},
			{"unknown transport", ServerConfig{Name: "a", Transport: "grpc"}, false},
			{"unnamed", ServerConfig{Transport: "stdio", Command: "srv"}, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cfg := validConfig()
				cfg.Servers = []ServerConfig{tt.server}
				if tt.ok {
					assert.NoError(t, cfg.Validate())
				} else {
					assert.Error(t, cfg.Validate())
				}
			})
		}
	})

	t.Run("should reject duplicate server names", func(t *testing.T) {
		cfg := validConfig()
		cfg.Servers = []ServerConfig{
			{Name: "a", Transport: "stdio", Command: "srv"},
			{Name: "a", Transport: "stdio", Command: "srv2"},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate server name")
	})

	t.Run("should reject unknown approval modes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Approvals.Mode = "oracle"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("should apply file values over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "convoy.json")
		content := `{
			"agents_file": "/etc/convoy/agents.yaml",
			"max_turns": 5,
			"providers": [{"name": "openai", "api_key": "sk-test"}],
			"servers": [{"name": "meteo", "transport": "websocket", "url": "ws://localhost:9001"}],
			"logging": {"level": "debug", "console": true}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/etc/convoy/agents.yaml", cfg.AgentsFile)
		assert.Equal(t, 5, cfg.MaxTurns)
		assert.Equal(t, "debug", cfg.Logging.Level)
		require.Len(t, cfg.Servers, 1)
		assert.Equal(t, "websocket", cfg.Servers[0].Transport)

		// Defaults survive for untouched sections.
		assert.Equal(t, "prompt", cfg.Approvals.Mode)
		assert.Equal(t, ":9090", cfg.Metrics.Addr)
		assert.NotEmpty(t, cfg.Session.Dir)
	})

	t.Run("should fail for an explicitly named missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("should fail on malformed JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "convoy.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

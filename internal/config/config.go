package config

import (
	"encoding/json"
	"fmt"
)

// Config is the top-level convoy configuration
type Config struct {
	// Data directory (config, logs, transcripts)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Path to the agents manifest (YAML or JSON)
	AgentsFile string `json:"agents_file" mapstructure:"agents_file"`

	// Model backends
	Providers []ProviderConfig `json:"providers" mapstructure:"providers"`

	// Capability servers
	Servers []ServerConfig `json:"servers" mapstructure:"servers"`

	// Tool approval behavior
	Approvals ApprovalsConfig `json:"approvals" mapstructure:"approvals"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics listener
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Transcript store
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Turn budget per run
	MaxTurns int `json:"max_turns" mapstructure:"max_turns"`
}

// ProviderConfig holds one model backend credential
type ProviderConfig struct {
	Name   string `json:"name" mapstructure:"name"` // anthropic, openai
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// ServerConfig describes one capability server connection
type ServerConfig struct {
	Name      string `json:"name" mapstructure:"name"`
	Transport string `json:"transport" mapstructure:"transport"` // stdio, websocket

	// stdio transport
	Command string   `json:"command,omitempty" mapstructure:"command"`
	Args    []string `json:"args,omitempty" mapstructure:"args"`
	Dir     string   `json:"dir,omitempty" mapstructure:"dir"`

	// websocket transport
	URL string `json:"url,omitempty" mapstructure:"url"`

	StartupTimeoutSeconds int `json:"startup_timeout_seconds,omitempty" mapstructure:"startup_timeout_seconds"`
	CallTimeoutSeconds    int `json:"call_timeout_seconds,omitempty" mapstructure:"call_timeout_seconds"`

	Allow []string `json:"allow,omitempty" mapstructure:"allow"`
	Deny  []string `json:"deny,omitempty" mapstructure:"deny"`
}

// ApprovalsConfig controls the tool approval gate
type ApprovalsConfig struct {
	Mode           string   `json:"mode" mapstructure:"mode"` // prompt, policy
	Allow          []string `json:"allow,omitempty" mapstructure:"allow"`
	Deny           []string `json:"deny,omitempty" mapstructure:"deny"`
	DefaultApprove bool     `json:"default_approve,omitempty" mapstructure:"default_approve"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file,omitempty" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// MetricsConfig holds the optional Prometheus listener settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// SessionConfig holds transcript store settings
type SessionConfig struct {
	Dir             string `json:"dir,omitempty" mapstructure:"dir"`
	CleanupAgeHours int    `json:"cleanup_age_hours,omitempty" mapstructure:"cleanup_age_hours"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Approvals: ApprovalsConfig{
			Mode:           "prompt",
			TimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Session: SessionConfig{
			CleanupAgeHours: 168,
		},
		MaxTurns: 10,
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no model backends configured: at least one provider is required")
	}

	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if p.Name != "anthropic" && p.Name != "openai" {
			return fmt.Errorf("provider %s: unsupported backend (must be: anthropic, openai)", p.Name)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required", p.Name)
		}
	}

	if c.AgentsFile == "" {
		return fmt.Errorf("agents_file is required")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate server name: %s", s.Name)
		}
		seen[s.Name] = true

		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return fmt.Errorf("server %s: command is required for stdio transport", s.Name)
			}
		case "websocket":
			if s.URL == "" {
				return fmt.Errorf("server %s: url is required for websocket transport", s.Name)
			}
		default:
			return fmt.Errorf("server %s: invalid transport %s (must be: stdio, websocket)", s.Name, s.Transport)
		}
	}

	if c.Approvals.Mode != "" && c.Approvals.Mode != "prompt" && c.Approvals.Mode != "policy" {
		return fmt.Errorf("invalid approvals mode: %s (must be: prompt, policy)", c.Approvals.Mode)
	}

	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns cannot be negative")
	}

	return nil
}

package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harun/convoy/pkg/tool"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form of an agent roster
type Manifest struct {
	Agents []ManifestAgent `json:"agents" yaml:"agents"`
}

// ManifestAgent is one agent entry in a manifest. Tools and servers are
// referenced by name and resolved against the process's local tool set and
// connected capability servers when the manifest is built.
type ManifestAgent struct {
	Name         string  `json:"name" yaml:"name"`
	Instructions string  `json:"instructions" yaml:"instructions"`
	Provider     string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model        string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	MaxRetries   int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	Tools    []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Servers  []string `json:"servers,omitempty" yaml:"servers,omitempty"`
	Handoffs []string `json:"handoffs,omitempty" yaml:"handoffs,omitempty"`
}

// Loader reads agent manifests and resolves them into definitions
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a manifest loader
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadFromFile reads a manifest from a JSON or YAML file
func (l *Loader) LoadFromFile(path string) (Manifest, error) {
	if path == "" {
		return Manifest{}, fmt.Errorf("manifest path is required")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Manifest{}, fmt.Errorf("manifest not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, &manifest); err != nil {
			return Manifest{}, fmt.Errorf("failed to parse JSON manifest: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return Manifest{}, fmt.Errorf("failed to parse YAML manifest: %w", err)
		}
	default:
		return Manifest{}, fmt.Errorf("unsupported manifest format: %s (supported: .json, .yaml, .yml)", ext)
	}

	l.logger.Info().
		Str("path", path).
		Int("agents", len(manifest.Agents)).
		Msg("Agent manifest loaded")
	return manifest, nil
}

// Build resolves a manifest into agent definitions. localTools maps tool
// names to handler-bearing definitions registered in code; servers maps
// capability server names to their connected clients. An entry referencing
// an unknown tool fails the whole build; a server missing from the connected
// set is skipped, leaving that agent with fewer tools.
func (l *Loader) Build(manifest Manifest, localTools map[string]tool.Definition, servers map[string]tool.RemoteProvider) ([]Definition, error) {
	if len(manifest.Agents) == 0 {
		return nil, fmt.Errorf("manifest declares no agents")
	}

	seen := make(map[string]bool, len(manifest.Agents))
	defs := make([]Definition, 0, len(manifest.Agents))

	for i, entry := range manifest.Agents {
		if seen[entry.Name] {
			return nil, fmt.Errorf("duplicate agent name: %s", entry.Name)
		}
		seen[entry.Name] = true

		def, err := l.buildOne(entry, localTools, servers)
		if err != nil {
			return nil, fmt.Errorf("agent entry %d (%s): %w", i, entry.Name, err)
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func (l *Loader) buildOne(entry ManifestAgent, localTools map[string]tool.Definition, servers map[string]tool.RemoteProvider) (Definition, error) {
	settings := DefaultModelSettings()
	if entry.Provider != "" {
		settings.Provider = entry.Provider
	}
	if entry.Model != "" {
		settings.Model = entry.Model
	}
	if entry.Temperature > 0 {
		settings.Temperature = entry.Temperature
	}
	if entry.MaxTokens > 0 {
		settings.MaxTokens = entry.MaxTokens
	}
	if entry.MaxRetries > 0 {
		settings.MaxRetries = entry.MaxRetries
	}

	tools := make([]tool.Definition, 0, len(entry.Tools))
	for _, name := range entry.Tools {
		def, ok := localTools[name]
		if !ok {
			return Definition{}, fmt.Errorf("unknown tool: %s", name)
		}
		tools = append(tools, def)
	}

	remotes := make([]tool.RemoteProvider, 0, len(entry.Servers))
	for _, name := range entry.Servers {
		server, ok := servers[name]
		if !ok {
			l.logger.Warn().
				Str("agent", entry.Name).
				Str("server", name).
				Msg("Capability server not connected, agent runs with fewer tools")
			continue
		}
		remotes = append(remotes, server)
	}

	def := Definition{
		Name:           entry.Name,
		Instructions:   StaticInstructions(entry.Instructions),
		Model:          settings,
		Tools:          tools,
		Servers:        remotes,
		HandoffTargets: entry.Handoffs,
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

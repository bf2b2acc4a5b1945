package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/convoy/pkg/capability"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Spec is the provider-facing description of one addressable tool
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// RemoteProvider is the slice of a capability server client the registry
// needs: a catalogue and an invocation path. *capability.Client satisfies it.
type RemoteProvider interface {
	Name() string
	Tools() []capability.ToolSpec
	Invoke(ctx context.Context, toolName string, args map[string]interface{}) (string, error)
}

// entry resolves a tool name to either a local handler or a remote proxy
type entry struct {
	local      *Definition
	remote     RemoteProvider
	remoteName string // original name on the server, before conflict prefixing

	description string
	inputSchema map[string]interface{}
	schema      *gojsonschema.Schema
}

// Registry binds local and remote tools into one namespace. It is populated
// at construction time and read-only afterwards, so lookups need no lock;
// the mutex only guards the registration phase.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a local tool
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := def.schemaMap()
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.entries[def.Name] = &entry{
		local:       &def,
		description: def.Description,
		inputSchema: schemaMap,
		schema:      schema,
	}

	log.Debug().Str("tool", def.Name).Msg("Local tool registered")
	return nil
}

// BindServer registers every tool from a connected capability server as a
// remote proxy. Name conflicts are resolved by prefixing with the server
// name, the way plugin tools are prefixed in multi-provider setups.
func (r *Registry) BindServer(ctx context.Context, client RemoteProvider) ([]string, error) {
	if client == nil {
		return nil, fmt.Errorf("capability client is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bound := make([]string, 0, len(client.Tools()))
	for _, spec := range client.Tools() {
		name := spec.Name
		if _, exists := r.entries[name]; exists {
			name = fmt.Sprintf("%s_%s", client.Name(), spec.Name)
			log.Warn().
				Str("original_name", spec.Name).
				Str("prefixed_name", name).
				Str("server", client.Name()).
				Msg("Tool name conflict resolved by prefixing with server name")
		}

		var schema *gojsonschema.Schema
		if len(spec.InputSchema) > 0 {
			compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.InputSchema))
			if err != nil {
				log.Warn().
					Str("tool", name).
					Err(err).
					Msg("Skipping parameter validation for remote tool with bad schema")
			} else {
				schema = compiled
			}
		}

		r.entries[name] = &entry{
			remote:      client,
			remoteName:  spec.Name,
			description: spec.Description,
			inputSchema: spec.InputSchema,
			schema:      schema,
		}
		bound = append(bound, name)
	}

	log.Info().
		Str("server", client.Name()).
		Int("tools", len(bound)).
		Msg("Capability server tools bound")
	return bound, nil
}

// Has reports whether a tool name is addressable
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns all addressable tool names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Specs returns provider-facing descriptions of every addressable tool
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.entries))
	for name, e := range r.entries {
		inputSchema := e.inputSchema
		if inputSchema == nil {
			inputSchema = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		specs = append(specs, Spec{
			Name:        name,
			Description: e.description,
			InputSchema: inputSchema,
		})
	}
	return specs
}

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

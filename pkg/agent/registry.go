package agent

import (
	"fmt"
	"sync"
)

// Registry holds the agent definitions for one process. It is populated at
// startup and read-only afterwards.
type Registry struct {
	agents map[string]Definition
	mu     sync.RWMutex
}

// NewRegistry creates an empty agent registry
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Definition),
	}
}

// Register adds an agent definition
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid agent definition: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[def.Name]; exists {
		return fmt.Errorf("agent already registered: %s", def.Name)
	}

	r.agents[def.Name] = def
	return nil
}

// Get retrieves an agent definition by name
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.agents[name]
	if !exists {
		return Definition{}, fmt.Errorf("agent not found: %s", name)
	}
	return def, nil
}

// Exists checks if an agent is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[name]
	return exists
}

// Names returns all registered agent names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered agents
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// ValidateHandoffs checks that every declared handoff target resolves to a
// registered agent. Called once, after all registrations.
func (r *Registry) ValidateHandoffs() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, def := range r.agents {
		for _, target := range def.HandoffTargets {
			if _, exists := r.agents[target]; !exists {
				return fmt.Errorf("agent %s hands off to unknown agent: %s", name, target)
			}
		}
	}
	return nil
}

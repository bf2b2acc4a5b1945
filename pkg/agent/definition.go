package agent

import (
	"fmt"

	"github.com/harun/convoy/pkg/tool"
)

// ModelSettings selects the backend and sampling parameters for an agent
type ModelSettings struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	MaxRetries  int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// DefaultModelSettings returns the settings used when a manifest leaves them out
func DefaultModelSettings() ModelSettings {
	return ModelSettings{
		Provider:    "anthropic",
		Model:       "claude-3-5-sonnet-20241022",
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxRetries:  3,
	}
}

// InstructionsFunc builds a system prompt from run-scoped data
type InstructionsFunc func(rc *tool.RunContext) string

// Instructions is either a fixed string or a function of the run context.
// The zero value renders to the empty string.
type Instructions struct {
	static string
	fn     InstructionsFunc
}

// StaticInstructions wraps a fixed system prompt
func StaticInstructions(text string) Instructions {
	return Instructions{static: text}
}

// DynamicInstructions wraps a prompt builder evaluated per turn
func DynamicInstructions(fn InstructionsFunc) Instructions {
	return Instructions{fn: fn}
}

// Render produces the system prompt for the given run context
func (i Instructions) Render(rc *tool.RunContext) string {
	if i.fn != nil {
		return i.fn(rc)
	}
	return i.static
}

// IsZero reports whether no instructions were provided
func (i Instructions) IsZero() bool {
	return i.fn == nil && i.static == ""
}

// Definition describes one agent: its prompt, model, tool surface, and the
// peers it may transfer control to. Definitions are immutable after
// construction; the runner never mutates them.
type Definition struct {
	Name           string
	Instructions   Instructions
	Model          ModelSettings
	Tools          []tool.Definition
	Servers        []tool.RemoteProvider
	HandoffTargets []string
}

// Validate checks the definition is internally consistent. Handoff targets
// are resolved later, against the registry, once all agents are known.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if d.Instructions.IsZero() {
		return fmt.Errorf("agent %s has no instructions", d.Name)
	}
	if d.Model.Model == "" {
		return fmt.Errorf("agent %s has no model", d.Name)
	}
	if d.Model.Temperature < 0 || d.Model.Temperature > 1 {
		return fmt.Errorf("agent %s temperature must be between 0 and 1", d.Name)
	}
	if d.Model.MaxTokens < 0 {
		return fmt.Errorf("agent %s max tokens cannot be negative", d.Name)
	}

	seen := make(map[string]bool, len(d.Tools))
	for _, t := range d.Tools {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("agent %s: %w", d.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("agent %s lists tool %s twice", d.Name, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// CanHandoffTo reports whether target is a declared handoff peer. An agent
// may declare itself, making the handoff a re-entry point bounded by the
// run's turn budget.
func (d Definition) CanHandoffTo(target string) bool {
	for _, t := range d.HandoffTargets {
		if t == target {
			return true
		}
	}
	return false
}

// RenderInstructions evaluates the agent's instructions for a run
func (d Definition) RenderInstructions(rc *tool.RunContext) string {
	return d.Instructions.Render(rc)
}

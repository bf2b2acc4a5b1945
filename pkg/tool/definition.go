// Package tool binds local handlers and remote capability-server tools into
// one addressable namespace per agent, and executes tool calls behind the
// approval gate.
package tool

import (
	"context"
	"fmt"
)

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for local tool execution
type Handler func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error)

// ApprovalFunc decides whether a specific invocation needs human approval
type ApprovalFunc func(rc *RunContext, params map[string]interface{}) bool

// Definition defines a local tool's metadata and handler
type Definition struct {
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Parameters    []Parameter  `json:"parameters"`
	Handler       Handler      `json:"-"`
	NeedsApproval ApprovalFunc `json:"-"`
}

// Validate checks a tool definition before registration
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if d.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range d.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// schemaMap builds the JSON Schema document for a local tool's parameters
func (d Definition) schemaMap() map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range d.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

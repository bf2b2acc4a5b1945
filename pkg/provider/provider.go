package provider

import (
	"context"
	"fmt"
)

// Message is one turn of conversation in backend-neutral form
type Message struct {
	Role       string     `json:"role"` // "user", "assistant", or "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolCall is one tool invocation requested by the model
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolSpec describes one tool exposed to the model
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another call's usage into this one
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Request contains the parameters for one model call
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

// Response contains what the model produced
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Provider is a conversational model backend
type Provider interface {
	// Call makes one model API call
	Call(ctx context.Context, request Request) (*Response, error)

	// Name returns the backend name
	Name() string
}

// Factory creates providers by backend name
type Factory struct{}

// New creates a provider for the named backend
func (f *Factory) New(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropic(apiKey), nil
	case "openai":
		return NewOpenAI(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

package history

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ItemType identifies the kind of a history item
type ItemType string

const (
	ItemUserMessage      ItemType = "user_message"
	ItemAssistantMessage ItemType = "assistant_message"
	ItemToolCall         ItemType = "tool_call"
	ItemToolResult       ItemType = "tool_result"
	ItemHandoff          ItemType = "handoff"
)

// Item is one entry in the conversation log. Exactly one variant's fields
// are populated, selected by Type.
type Item struct {
	Type      ItemType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// user_message / assistant_message
	Agent   string `json:"agent,omitempty"`
	Content string `json:"content,omitempty"`

	// tool_call / tool_result
	CallID   string                 `json:"call_id,omitempty"`
	ToolName string                 `json:"tool_name,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Output   string                 `json:"output,omitempty"`
	IsError  bool                   `json:"is_error,omitempty"`

	// handoff
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// NewCallID generates a short unique identifier for a tool call
func NewCallID() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails if the entropy source is broken
		return time.Now().Format("20060102150405.000000000")
	}
	return "call_" + id
}

// NewUserMessage creates a user turn item
func NewUserMessage(content string) Item {
	return Item{
		Type:      ItemUserMessage,
		Timestamp: time.Now().UTC(),
		Content:   content,
	}
}

// NewAssistantMessage creates an assistant turn item attributed to an agent
func NewAssistantMessage(agent, content string) Item {
	return Item{
		Type:      ItemAssistantMessage,
		Timestamp: time.Now().UTC(),
		Agent:     agent,
		Content:   content,
	}
}

// NewToolCall creates a tool call item
func NewToolCall(callID, toolName string, args map[string]interface{}) Item {
	return Item{
		Type:      ItemToolCall,
		Timestamp: time.Now().UTC(),
		CallID:    callID,
		ToolName:  toolName,
		Args:      args,
	}
}

// NewToolResult creates a tool result item matching a prior tool call
func NewToolResult(callID, output string, isError bool) Item {
	return Item{
		Type:      ItemToolResult,
		Timestamp: time.Now().UTC(),
		CallID:    callID,
		Output:    output,
		IsError:   isError,
	}
}

// NewHandoff creates a handoff event item
func NewHandoff(from, to string) Item {
	return Item{
		Type:      ItemHandoff,
		Timestamp: time.Now().UTC(),
		From:      from,
		To:        to,
	}
}

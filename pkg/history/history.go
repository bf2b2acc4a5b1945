// Package history provides the append-only conversation log shared by the
// runner, tool invoker, and front end. The log is the single source of truth
// for a conversation: user turns, assistant turns, tool calls and their
// results, and agent handoffs, in causal order.
package history

import (
	"fmt"
	"sync"
)

// History is an append-only ordered log of conversation items.
// Writes come from a single writer (the runner); readers get snapshots.
type History struct {
	mu    sync.RWMutex
	items []Item
}

// New creates an empty history
func New() *History {
	return &History{}
}

// Append adds items to the end of the log
func (h *History) Append(items ...Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, items...)
}

// Snapshot returns a copy of all items in insertion order
func (h *History) Snapshot() []Item {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Item, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of items in the log
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Validate checks the call/result pairing invariant: every tool call is
// followed by exactly one result with the same call ID before the next
// assistant message.
func (h *History) Validate() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	open := make(map[string]bool)
	for i, item := range h.items {
		switch item.Type {
		case ItemToolCall:
			if item.CallID == "" {
				return fmt.Errorf("item %d: tool call without call ID", i)
			}
			if open[item.CallID] {
				return fmt.Errorf("item %d: duplicate tool call %s", i, item.CallID)
			}
			open[item.CallID] = true
		case ItemToolResult:
			if !open[item.CallID] {
				return fmt.Errorf("item %d: tool result %s without matching call", i, item.CallID)
			}
			delete(open, item.CallID)
		case ItemAssistantMessage:
			if len(open) > 0 {
				return fmt.Errorf("item %d: assistant message with %d unresolved tool calls", i, len(open))
			}
		}
	}

	if len(open) > 0 {
		return fmt.Errorf("history ends with %d unresolved tool calls", len(open))
	}
	return nil
}

// Package types defines the wire shapes shared by the gateway packages.
package types

import "encoding/json"

// ModelList is the body of GET /models.
type ModelList struct {
	Data []ModelEntry `json:"data"`
}

// ModelEntry is one advertised category.
type ModelEntry struct {
	ID string `json:"id"`
}

// Message is the subset of a chat message used for prompt token estimates.
// Content may be a plain string or a list of typed parts.
type Message struct {
	Role       string          `json:"role"`
	Name       string          `json:"name,omitempty"`
	Content    any             `json:"content"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// Package message defines the conversation data contract shared by the
// session channel, the agent loop, and model providers. The JSON encoding
// follows the Anthropic Messages API so clients can send history verbatim.
package message

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

// Supported roles. System instructions travel outside the message list.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the variant stored in a ContentBlock.
type BlockType string

// Supported block types.
const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UnmarshalJSON implements json.Unmarshaler. Content given as a plain
// string is normalized into a single text block.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	switch raw.Content[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return err
		}
		m.Content = []ContentBlock{NewTextBlock(s)}
	case '[':
		if err := json.Unmarshal(raw.Content, &m.Content); err != nil {
			return err
		}
	default:
		return fmt.Errorf("message: unsupported content encoding for role %q", raw.Role)
	}
	return nil
}

// NewUserMessage creates a user message from the given blocks.
func NewUserMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks}
}

// NewAssistantMessage creates an assistant message from the given blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// ToolUses returns the tool_use blocks of the message in order.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// HasImages reports whether the message carries at least one image,
// either standalone or nested inside a tool result.
func (m Message) HasImages() bool {
	for _, b := range m.Content {
		if b.Type == BlockImage {
			return true
		}
		if b.Type == BlockToolResult {
			for _, nested := range b.Content {
				if nested.Type == BlockImage {
					return true
				}
			}
		}
	}
	return false
}

// TextContent returns the concatenated text of all top-level text blocks.
func (m Message) TextContent() string {
	return textContent(m.Content)
}

// Clone returns a deep copy of the message so callers can trim or rewrite
// blocks without touching the original history.
func (m Message) Clone() Message {
	cp := Message{Role: m.Role}
	if m.Content != nil {
		cp.Content = make([]ContentBlock, len(m.Content))
		for i, b := range m.Content {
			cp.Content[i] = b.clone()
		}
	}
	return cp
}

// CloneHistory deep-copies a message sequence.
func CloneHistory(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

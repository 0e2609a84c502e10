package message

import (
	"encoding/json"
	"fmt"
)

// ImageSource carries inline image data.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is a flat union representing one piece of content inside a message.
// The Type field discriminates which fields are meaningful:
//
//	text        Text
//	image       Source
//	tool_use    ID, Name, Input
//	tool_result ToolUseID, Content, IsError
type ContentBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *ImageSource    `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   []ContentBlock  `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// NewTextBlock creates a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewImageBlock creates a base64 image content block.
func NewImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{
		Type:   BlockImage,
		Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: data},
	}
}

// NewToolUseBlock creates a tool_use block. A nil input is encoded as {}.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: cloneRaw(input)}
}

// NewToolResultBlock creates a tool_result block answering the given tool_use id.
func NewToolResultBlock(toolUseID string, content []ContentBlock, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// MarshalJSON implements json.Marshaler.
// It enforces union semantics: only the fields of the active variant are
// written, text blocks always carry "text", and tool_use blocks always carry
// an "input" object.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockText:
		return json.Marshal(struct {
			Type BlockType `json:"type"`
			Text string    `json:"text"`
		}{b.Type, b.Text})

	case BlockImage:
		return json.Marshal(struct {
			Type   BlockType    `json:"type"`
			Source *ImageSource `json:"source"`
		}{b.Type, b.Source})

	case BlockToolUse:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return json.Marshal(struct {
			Type  BlockType       `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{b.Type, b.ID, b.Name, input})

	case BlockToolResult:
		content := b.Content
		if content == nil {
			content = []ContentBlock{}
		}
		return json.Marshal(struct {
			Type      BlockType      `json:"type"`
			ToolUseID string         `json:"tool_use_id"`
			Content   []ContentBlock `json:"content"`
			IsError   bool           `json:"is_error,omitempty"`
		}{b.Type, b.ToolUseID, content, b.IsError})
	}

	type alias ContentBlock
	return json.Marshal(alias(b))
}

// UnmarshalJSON implements json.Unmarshaler. A tool_result "content" given
// as a plain string is normalized into a single text block.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type alias ContentBlock
	var raw struct {
		alias
		Content json.RawMessage `json:"content,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ContentBlock(raw.alias)
	b.Content = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}

	switch raw.Content[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return err
		}
		b.Content = []ContentBlock{NewTextBlock(s)}
	case '[':
		if err := json.Unmarshal(raw.Content, &b.Content); err != nil {
			return err
		}
	default:
		return fmt.Errorf("message: unsupported %s content encoding", b.Type)
	}
	return nil
}

func (b ContentBlock) clone() ContentBlock {
	cp := b
	if b.Source != nil {
		src := *b.Source
		cp.Source = &src
	}
	cp.Input = cloneRaw(b.Input)
	if b.Content != nil {
		cp.Content = make([]ContentBlock, len(b.Content))
		for i, nested := range b.Content {
			cp.Content[i] = nested.clone()
		}
	}
	return cp
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	cp := make(json.RawMessage, len(data))
	copy(cp, data)
	return cp
}

// textContent concatenates the text of all text blocks, separated by newlines.
func textContent(blocks []ContentBlock) string {
	var result string
	for _, b := range blocks {
		if b.Type == BlockText && b.Text != "" {
			if result != "" {
				result += "\n"
			}
			result += b.Text
		}
	}
	return result
}

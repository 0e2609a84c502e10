package provider

import (
	"encoding/json"
	"fmt"

	"github.com/flemzord/agentbridge/pkg/message"
)

// Kind names the hosting platform used to reach the model.
type Kind string

// Kind constants for the supported hosting platforms.
const (
	KindAnthropic Kind = "anthropic"
	KindBedrock   Kind = "bedrock"
	KindVertex    Kind = "vertex"
)

// ParseKind validates a provider name received from a client.
// An empty string resolves to KindAnthropic.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindAnthropic, nil
	case KindAnthropic, KindBedrock, KindVertex:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants for model completion termination.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonFiltering FinishReason = "filtering"
)

// ToolDefinition describes a tool the model may invoke.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// CompletionRequest is the input to a Provider.Complete or Streamer.Stream call.
type CompletionRequest struct {
	Model     string            `json:"model"`
	System    string            `json:"system,omitempty"`
	Messages  []message.Message `json:"messages"`
	Tools     []ToolDefinition  `json:"tools,omitempty"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

// CompletionResponse is the output of a model call: the ordered content
// blocks of one assistant turn.
type CompletionResponse struct {
	ID           string                 `json:"id,omitempty"`
	Content      []message.ContentBlock `json:"content"`
	FinishReason FinishReason           `json:"finish_reason"`
	Usage        TokenUsage             `json:"usage"`

	// Request identifies the HTTP request that produced the response, when
	// the transport exposes it.
	Request *RequestDescriptor `json:"-"`
}

// RequestDescriptor identifies the HTTP request behind a model call.
type RequestDescriptor struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

package session

import (
	"encoding/json"
	"fmt"

	"github.com/flemzord/agentbridge/internal/agent"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/tool"
	"github.com/flemzord/agentbridge/pkg/message"
)

// FrameType identifies the kind of outbound frame.
type FrameType string

// Outbound frame types.
const (
	FrameContent     FrameType = "content"
	FrameToolResult  FrameType = "tool_result"
	FrameAPIResponse FrameType = "api_response"
	FrameComplete    FrameType = "complete"
	FrameError       FrameType = "error"
)

// Frame is the wire format of every outbound message.
type Frame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data"`
}

// ToolResultData is the payload of a tool_result frame.
type ToolResultData struct {
	Result    WireResult `json:"result"`
	ToolUseID string     `json:"tool_use_id"`
}

// WireResult is a tool.Result where empty fields encode as null.
type WireResult struct {
	Output      *string `json:"output"`
	Error       *string `json:"error"`
	System      *string `json:"system"`
	Base64Image *string `json:"base64_image"`
}

// APIResponseData is the payload of an api_response frame. Error is null
// for a successful model call.
type APIResponseData struct {
	Error         *string `json:"error"`
	RequestURL    string  `json:"request_url,omitempty"`
	RequestMethod string  `json:"request_method,omitempty"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func wireResult(r tool.Result) WireResult {
	return WireResult{
		Output:      nullable(r.Output),
		Error:       nullable(r.Error),
		System:      nullable(r.System),
		Base64Image: nullable(r.Base64Image),
	}
}

// EventFrame converts a loop event into its outbound frame.
func EventFrame(ev agent.Event) (Frame, error) {
	switch ev.Kind {
	case agent.EventContent:
		return Frame{Type: FrameContent, Data: ev.Block}, nil
	case agent.EventToolResult:
		return Frame{Type: FrameToolResult, Data: ToolResultData{
			Result:    wireResult(ev.ToolResult),
			ToolUseID: ev.ToolUseID,
		}}, nil
	case agent.EventAPIResponse:
		var data APIResponseData
		if d := ev.Diagnostic; d != nil {
			if d.Err != nil {
				data.Error = nullable(d.Err.Error())
			}
			if d.Request != nil {
				data.RequestURL = d.Request.URL
				data.RequestMethod = d.Request.Method
			}
		}
		return Frame{Type: FrameAPIResponse, Data: data}, nil
	default:
		return Frame{}, fmt.Errorf("session: unknown event kind %q", ev.Kind)
	}
}

// CompleteFrame carries the final history of a loop execution.
func CompleteFrame(history []message.Message) Frame {
	if history == nil {
		history = []message.Message{}
	}
	return Frame{Type: FrameComplete, Data: history}
}

// ErrorFrame carries a human-readable error description.
func ErrorFrame(err error) Frame {
	return Frame{Type: FrameError, Data: err.Error()}
}

// Batch is one inbound request: the history to continue and the settings
// of the loop execution.
type Batch struct {
	Model                 string            `json:"model"`
	Provider              string            `json:"provider"`
	SystemPromptSuffix    string            `json:"system_prompt_suffix"`
	Messages              []message.Message `json:"messages"`
	APIKey                string            `json:"api_key"`
	OnlyNMostRecentImages *int              `json:"only_n_most_recent_images"`
	MaxTokens             int               `json:"max_tokens"`
}

// Limits bound the size and nesting of inbound batches.
type Limits struct {
	MaxBytes     int
	MaxJSONDepth int
}

// DecodeBatch parses and validates one inbound frame.
func DecodeBatch(data []byte, limits Limits) (Batch, error) {
	if err := security.ValidatePayload(data, security.PayloadLimits{
		MaxBytes: limits.MaxBytes,
		MaxDepth: limits.MaxJSONDepth,
	}); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	if err := b.validate(); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func (b Batch) validate() error {
	if len(b.Messages) == 0 {
		return ErrMissingMessages
	}
	if b.APIKey == "" {
		return ErrMissingAPIKey
	}
	if _, err := provider.ParseKind(b.Provider); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	if b.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidBatch, b.MaxTokens)
	}
	if n := b.OnlyNMostRecentImages; n != nil && *n < 0 {
		return fmt.Errorf("%w: only_n_most_recent_images must be non-negative, got %d", ErrInvalidBatch, *n)
	}
	for i, m := range b.Messages {
		if m.Role != message.RoleUser && m.Role != message.RoleAssistant {
			return fmt.Errorf("%w: messages[%d] has unsupported role %q", ErrInvalidBatch, i, m.Role)
		}
	}
	return nil
}

// Params converts the batch into loop execution parameters.
func (b Batch) Params(sessionID string) agent.Params {
	kind, _ := provider.ParseKind(b.Provider)
	return agent.Params{
		Model:                 b.Model,
		Provider:              kind,
		SystemPromptSuffix:    b.SystemPromptSuffix,
		OnlyNMostRecentImages: b.OnlyNMostRecentImages,
		MaxTokens:             b.MaxTokens,
		APIKey:                b.APIKey,
		SessionID:             sessionID,
	}
}

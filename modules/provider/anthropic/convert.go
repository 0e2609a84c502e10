package anthropic

import (
	"encoding/json"
	"net/http"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/pkg/message"
)

// defaultMaxTokens applies when a request carries no token budget.
const defaultMaxTokens = 4096

// convertRequest transforms a CompletionRequest into Anthropic SDK parameters.
func convertRequest(req provider.CompletionRequest) sdkanthropic.MessageNewParams {
	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(req.Model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: defaultMaxTokens,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.System != "" {
		params.System = []sdkanthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

// convertMessages transforms conversation messages into SDK message params.
// Messages with no convertible blocks are dropped; the API rejects empty
// content.
func convertMessages(msgs []message.Message) []sdkanthropic.MessageParam {
	result := make([]sdkanthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		blocks := convertBlocks(msg.Content)
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case message.RoleAssistant:
			result = append(result, sdkanthropic.NewAssistantMessage(blocks...))
		default:
			result = append(result, sdkanthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

func convertBlocks(blocks []message.ContentBlock) []sdkanthropic.ContentBlockParamUnion {
	out := make([]sdkanthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case message.BlockText:
			out = append(out, sdkanthropic.NewTextBlock(b.Text))
		case message.BlockImage:
			if b.Source == nil {
				continue
			}
			out = append(out, sdkanthropic.NewImageBlockBase64(b.Source.MediaType, b.Source.Data))
		case message.BlockToolUse:
			// json.RawMessage implements json.Marshaler so the SDK
			// serializes it without double-encoding.
			input := any(b.Input)
			if len(b.Input) == 0 {
				input = json.RawMessage("{}")
			}
			out = append(out, sdkanthropic.NewToolUseBlock(b.ID, input, b.Name))
		case message.BlockToolResult:
			out = append(out, convertToolResult(b))
		}
	}
	return out
}

// convertToolResult keeps the nested text and image blocks of a tool result.
func convertToolResult(b message.ContentBlock) sdkanthropic.ContentBlockParamUnion {
	content := make([]sdkanthropic.ToolResultBlockParamContentUnion, 0, len(b.Content))
	for _, inner := range b.Content {
		switch inner.Type {
		case message.BlockText:
			content = append(content, sdkanthropic.ToolResultBlockParamContentUnion{
				OfText: &sdkanthropic.TextBlockParam{Text: inner.Text},
			})
		case message.BlockImage:
			if inner.Source == nil {
				continue
			}
			content = append(content, sdkanthropic.ToolResultBlockParamContentUnion{
				OfImage: &sdkanthropic.ImageBlockParam{
					Source: sdkanthropic.ImageBlockParamSourceUnion{
						OfBase64: &sdkanthropic.Base64ImageSourceParam{
							Data:      inner.Source.Data,
							MediaType: sdkanthropic.Base64ImageSourceMediaType(inner.Source.MediaType),
						},
					},
				},
			})
		}
	}

	param := &sdkanthropic.ToolResultBlockParam{
		ToolUseID: b.ToolUseID,
		Content:   content,
	}
	if b.IsError {
		param.IsError = sdkanthropic.Bool(true)
	}
	return sdkanthropic.ContentBlockParamUnion{OfToolResult: param}
}

// convertTools transforms tool definitions into Anthropic SDK tool params.
func convertTools(tools []provider.ToolDefinition) []sdkanthropic.ToolUnionParam {
	result := make([]sdkanthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		tool := &sdkanthropic.ToolParam{
			Name: t.Name,
		}
		if t.Description != "" {
			tool.Description = sdkanthropic.String(t.Description)
		}
		if len(t.Parameters) > 0 {
			tool.InputSchema = convertInputSchema(t.Parameters)
		}
		result[i] = sdkanthropic.ToolUnionParam{OfTool: tool}
	}
	return result
}

// convertInputSchema converts a raw JSON Schema into the SDK's ToolInputSchemaParam.
// All schema fields beyond "properties" and "required" (e.g. $defs, oneOf,
// additionalProperties, enum) are preserved via ExtraFields.
func convertInputSchema(raw json.RawMessage) sdkanthropic.ToolInputSchemaParam {
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return sdkanthropic.ToolInputSchemaParam{}
	}

	param := sdkanthropic.ToolInputSchemaParam{}

	if props, ok := full["properties"]; ok {
		param.Properties = props
		delete(full, "properties")
	}
	if req, ok := full["required"]; ok {
		if arr, ok := req.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			param.Required = strs
		}
		delete(full, "required")
	}
	// "type" is auto-set to "object" by the SDK.
	delete(full, "type")

	if len(full) > 0 {
		param.ExtraFields = full
	}

	return param
}

// convertResponse transforms an SDK Message into a CompletionResponse,
// keeping block order.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	content := make([]message.ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case sdkanthropic.TextBlock:
			content = append(content, message.NewTextBlock(v.Text))
		case sdkanthropic.ToolUseBlock:
			content = append(content, message.NewToolUseBlock(v.ID, v.Name, v.Input))
		}
	}

	return provider.CompletionResponse{
		ID:           msg.ID,
		Content:      content,
		FinishReason: convertStopReason(msg.StopReason),
		Usage:        usage(msg.Usage.InputTokens, msg.Usage.OutputTokens),
	}
}

func usage(input, output int64) provider.TokenUsage {
	return provider.TokenUsage{
		PromptTokens:     int(input),
		CompletionTokens: int(output),
		TotalTokens:      int(input + output),
	}
}

// convertStopReason maps an Anthropic stop reason to a FinishReason.
func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonEndTurn, sdkanthropic.StopReasonStopSequence:
		return provider.FinishReasonStop
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonToolUse:
		return provider.FinishReasonToolUse
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}

// describeRequest extracts the method and URL of an HTTP request.
func describeRequest(req *http.Request) *provider.RequestDescriptor {
	if req == nil || req.URL == nil {
		return nil
	}
	return &provider.RequestDescriptor{Method: req.Method, URL: req.URL.String()}
}

func describeResponse(resp *http.Response) *provider.RequestDescriptor {
	if resp == nil {
		return nil
	}
	return describeRequest(resp.Request)
}

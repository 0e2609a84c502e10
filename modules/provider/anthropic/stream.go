package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/pkg/message"
)

// maxOpenBlocks is the maximum number of content blocks tracked at once
// during a single stream. This bounds memory in case of a misbehaving
// server that sends unbounded ContentBlockStart events without matching Stop events.
const maxOpenBlocks = 100

// streamState tracks accumulated state across SSE events for a single stream.
type streamState struct {
	id           string
	inputTokens  int64
	outputTokens int64
	finish       provider.FinishReason

	// open accumulates content blocks per index until they stop.
	open map[int64]*blockBuffer
}

// blockBuffer accumulates one content block's data across deltas.
type blockBuffer struct {
	typ  string
	id   string
	name string
	buf  strings.Builder
}

func (b *blockBuffer) block() (message.ContentBlock, bool) {
	switch b.typ {
	case "text":
		return message.NewTextBlock(b.buf.String()), true
	case "tool_use":
		input := json.RawMessage(b.buf.String())
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return message.NewToolUseBlock(b.id, b.name, input), true
	default:
		return message.ContentBlock{}, false
	}
}

// streamBlocks consumes the SSE stream and hands each content block to
// onBlock as soon as its content_block_stop event arrives. Blocks already
// delivered are returned with any mid-stream error.
func (c *Client) streamBlocks(ctx context.Context, req provider.CompletionRequest, onBlock func(message.ContentBlock) error) (provider.CompletionResponse, error) {
	params := convertRequest(req)

	var raw *http.Response
	stream := c.sdk.Messages.NewStreaming(ctx, params, option.WithResponseInto(&raw))
	defer func() { _ = stream.Close() }() //nolint:errcheck // best-effort close

	state := streamState{open: make(map[int64]*blockBuffer)}
	var resp provider.CompletionResponse

	for stream.Next() {
		block, done, err := state.process(stream.Current())
		if err != nil {
			resp = state.response(resp.Content, raw)
			return resp, &provider.APIError{Request: resp.Request, Err: err}
		}
		if !done {
			continue
		}
		resp.Content = append(resp.Content, block)
		if err := onBlock(block); err != nil {
			return state.response(resp.Content, raw), err
		}
	}

	resp = state.response(resp.Content, raw)
	if err := stream.Err(); err != nil {
		return resp, mapError(err, raw)
	}
	return resp, nil
}

// process applies one SSE event. It reports a finished content block when
// the event closes one.
func (s *streamState) process(event sdkanthropic.MessageStreamEventUnion) (message.ContentBlock, bool, error) {
	switch ev := event.AsAny().(type) {
	case sdkanthropic.MessageStartEvent:
		s.id = ev.Message.ID
		s.inputTokens = ev.Message.Usage.InputTokens

	case sdkanthropic.ContentBlockStartEvent:
		if len(s.open) >= maxOpenBlocks {
			return message.ContentBlock{}, false, fmt.Errorf("provider.anthropic: exceeded max open content blocks (%d)", maxOpenBlocks)
		}
		buf := &blockBuffer{
			typ:  ev.ContentBlock.Type,
			id:   ev.ContentBlock.ID,
			name: ev.ContentBlock.Name,
		}
		buf.buf.WriteString(ev.ContentBlock.Text)
		s.open[ev.Index] = buf

	case sdkanthropic.ContentBlockDeltaEvent:
		buf, ok := s.open[ev.Index]
		if !ok {
			return message.ContentBlock{}, false, nil
		}
		switch delta := ev.Delta.AsAny().(type) {
		case sdkanthropic.TextDelta:
			buf.buf.WriteString(delta.Text)
		case sdkanthropic.InputJSONDelta:
			buf.buf.WriteString(delta.PartialJSON)
		}

	case sdkanthropic.ContentBlockStopEvent:
		buf, ok := s.open[ev.Index]
		if !ok {
			return message.ContentBlock{}, false, nil
		}
		delete(s.open, ev.Index)
		block, ok := buf.block()
		return block, ok, nil

	case sdkanthropic.MessageDeltaEvent:
		s.outputTokens = ev.Usage.OutputTokens
		s.finish = convertStopReason(ev.Delta.StopReason)
	}
	return message.ContentBlock{}, false, nil
}

func (s *streamState) response(content []message.ContentBlock, raw *http.Response) provider.CompletionResponse {
	return provider.CompletionResponse{
		ID:           s.id,
		Content:      content,
		FinishReason: s.finish,
		Usage:        usage(s.inputTokens, s.outputTokens),
		Request:      describeResponse(raw),
	}
}

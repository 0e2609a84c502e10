package agent

import (
	"context"

	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/tool"
	"github.com/flemzord/agentbridge/pkg/message"
)

// EventKind discriminates the Event variants.
type EventKind string

// Event kinds produced by the loop driver.
const (
	EventContent     EventKind = "content"
	EventToolResult  EventKind = "tool_result"
	EventAPIResponse EventKind = "api_response"
)

// Event is one intermediate artifact of a loop execution. Exactly the
// fields matching Kind are set.
type Event struct {
	Kind EventKind

	// Block is set for EventContent.
	Block message.ContentBlock

	// ToolResult and ToolUseID are set for EventToolResult.
	ToolResult tool.Result
	ToolUseID  string

	// Diagnostic is set for EventAPIResponse.
	Diagnostic *Diagnostic
}

// Diagnostic describes one model call. Err is nil on success.
type Diagnostic struct {
	Request  *provider.RequestDescriptor
	Response *ResponseSummary
	Err      error
}

// ResponseSummary is the metadata of a successful model call.
type ResponseSummary struct {
	ID           string
	FinishReason provider.FinishReason
	Usage        provider.TokenUsage
}

// ContentEvent builds an EventContent.
func ContentEvent(b message.ContentBlock) Event {
	return Event{Kind: EventContent, Block: b}
}

// ToolResultEvent builds an EventToolResult.
func ToolResultEvent(r tool.Result, toolUseID string) Event {
	return Event{Kind: EventToolResult, ToolResult: r, ToolUseID: toolUseID}
}

// APIResponseEvent builds an EventAPIResponse.
func APIResponseEvent(d Diagnostic) Event {
	return Event{Kind: EventAPIResponse, Diagnostic: &d}
}

// Emitter is the single ordered sink for loop events. Emit blocks until
// the event has been handed off; an error aborts the loop execution.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, ev Event) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

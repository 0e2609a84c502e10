// Package agent implements the loop driver: it alternates model calls and
// tool executions over an append-only message history and reports every
// intermediate artifact through a single ordered Emitter.
package agent

import (
	"encoding/json"
	"time"

	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/tool"
	"github.com/flemzord/agentbridge/pkg/message"
)

// StopReason describes why a loop execution terminated.
type StopReason string

// StopReason constants for loop termination.
const (
	StopReasonComplete      StopReason = "complete"
	StopReasonAPIError      StopReason = "api_error"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonLoopDetected  StopReason = "loop_detected"
	StopReasonTokenBudget   StopReason = "token_budget"
	StopReasonCanceled      StopReason = "canceled"
	StopReasonError         StopReason = "error"
)

// Params are the per-batch settings of one loop execution.
type Params struct {
	// Model is the model id. Empty selects LoopConfig.DefaultModel.
	Model string

	// Provider is the hosting platform. Empty selects anthropic.
	Provider provider.Kind

	// SystemPromptSuffix is appended to the base system prompt.
	SystemPromptSuffix string

	// OnlyNMostRecentImages keeps images only in the N most recent user
	// turns that carry images. Nil disables trimming.
	OnlyNMostRecentImages *int

	// MaxTokens is the output token budget per model call. Zero selects
	// LoopConfig.DefaultMaxTokens.
	MaxTokens int

	// APIKey authenticates the model calls of this execution.
	APIKey string

	// SessionID tags logs, spans and tool audit events.
	SessionID string
}

// ToolCallRecord tracks one tool invocation during a loop execution.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Result    tool.Result
	Duration  time.Duration
	Panicked  bool
}

// Result is the outcome of Loop.Run.
type Result struct {
	// RunID uniquely identifies the execution.
	RunID string

	// Model and Provider are the resolved model id and hosting platform.
	Model    string
	Provider provider.Kind

	// Messages is the final history: the input history followed by every
	// message appended during the run.
	Messages []message.Message

	ToolCalls  []ToolCallRecord
	Usage      provider.TokenUsage
	Iterations int
	StopReason StopReason

	// Err is the model failure that ended the run, if any.
	Err error

	StartedAt time.Time
	Duration  time.Duration
}

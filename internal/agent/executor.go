package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/tool"
	"github.com/flemzord/agentbridge/pkg/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flemzord/agentbridge/internal/agent"

// ToolRunner lists and executes tools. *tool.Registry implements it.
type ToolRunner interface {
	Schemas() []tool.Schema
	Execute(ctx context.Context, name string, args json.RawMessage, env tool.ExecutionEnv) (tool.Result, error)
}

// ToolExecutorConfig holds the dependencies for tool execution.
type ToolExecutorConfig struct {
	Tools    ToolRunner
	Env      tool.ExecutionEnv
	Tracer   trace.Tracer
	Observer Observer
}

// ToolExecutor runs tool calls one at a time with panic recovery. Every
// failure, including an unknown tool or a policy denial, becomes an
// error-flagged result; Execute never fails.
type ToolExecutor struct {
	tools    ToolRunner
	env      tool.ExecutionEnv
	tracer   trace.Tracer
	observer Observer
}

// NewToolExecutor creates a ToolExecutor from the given configuration.
func NewToolExecutor(cfg ToolExecutorConfig) *ToolExecutor {
	e := &ToolExecutor{
		tools:    cfg.Tools,
		env:      cfg.Env,
		tracer:   cfg.Tracer,
		observer: cfg.Observer,
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

// Definitions returns the tools offered to the model.
func (e *ToolExecutor) Definitions() []provider.ToolDefinition {
	schemas := e.tools.Schemas()
	defs := make([]provider.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		defs = append(defs, provider.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Schema,
		})
	}
	return defs
}

// Execute runs the tool requested by a tool_use block.
func (e *ToolExecutor) Execute(ctx context.Context, call message.ContentBlock, sessionID string) (record ToolCallRecord) {
	record.ID = call.ID
	record.Name = call.Name
	record.Arguments = call.Input

	ctx, span := e.tracer.Start(ctx, "agent.tool_call", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			record.Panicked = true
			record.Result = tool.Errorf("panic: %v", r)
		}
		record.Duration = time.Since(start)
		if record.Result.IsError() {
			span.SetStatus(codes.Error, record.Result.Error)
		}
		span.End()
		e.observer.ObserveToolCall(call.Name, record.Duration, record.Result.IsError())
	}()

	env := e.env
	env.SessionID = sessionID

	result, err := e.tools.Execute(ctx, call.Name, call.Input, env)
	if err != nil {
		span.RecordError(err)
		record.Result = tool.ErrorResult(err)
		return record
	}

	record.Result = result
	return record
}

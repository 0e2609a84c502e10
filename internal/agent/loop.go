package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/pkg/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmitFailed wraps an Emitter failure. The loop execution stops at the
// first one.
var ErrEmitFailed = errors.New("agent: event delivery failed")

// ProviderSource builds a provider for one loop execution.
// *provider.Registry implements it.
type ProviderSource interface {
	New(ctx context.Context, kind provider.Kind, creds provider.Credentials) (provider.Provider, error)
}

// Loop is the loop driver. A Loop holds no per-execution state and may
// serve any number of concurrent Run calls.
type Loop struct {
	providers ProviderSource
	executor  *ToolExecutor
	config    LoopConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer
	now       func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *slog.Logger) Option {
	return func(loop *Loop) { loop.logger = l }
}

// WithTracer sets the tracer used for run and model call spans.
func WithTracer(t trace.Tracer) Option {
	return func(loop *Loop) { loop.tracer = t }
}

// WithObserver sets the model call observer.
func WithObserver(o Observer) Option {
	return func(loop *Loop) { loop.observer = o }
}

// WithClock overrides time.Now, used for the {{date}} placeholder and timings.
func WithClock(now func() time.Time) Option {
	return func(loop *Loop) { loop.now = now }
}

// NewLoop creates a Loop with the given provider source, executor, and config.
func NewLoop(providers ProviderSource, executor *ToolExecutor, cfg LoopConfig, opts ...Option) *Loop {
	l := &Loop{
		providers: providers,
		executor:  executor,
		config:    cfg.withDefaults(),
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		observer:  nopObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one loop execution over history and reports every event
// through emit.
//
// A model failure is not an error: it is reported as an api_response event
// and the run ends with StopReasonAPIError. Run returns an error only when
// ctx is canceled or emit fails. In every case the returned Result carries
// the history accumulated so far. history itself is never modified.
func (l *Loop) Run(ctx context.Context, params Params, history []message.Message, emit Emitter) (Result, error) {
	params = l.config.resolve(params)
	res := Result{
		RunID:     uuid.NewString(),
		Model:     params.Model,
		Provider:  params.Provider,
		StartedAt: l.now(),
	}
	logger := l.logger.With("run_id", res.RunID, "session_id", params.SessionID)

	ctx, span := l.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.run_id", res.RunID),
		attribute.String("agent.session_id", params.SessionID),
		attribute.String("agent.provider", string(params.Provider)),
		attribute.String("agent.model", params.Model),
	))
	defer span.End()

	messages := message.CloneHistory(history)
	guard := newGuards(l.config.TokenBudget, l.config.LoopThreshold)

	finish := func(reason StopReason) Result {
		res.Messages = messages
		res.StopReason = reason
		res.Usage = guard.usage
		res.Duration = l.now().Sub(res.StartedAt)
		span.SetAttributes(
			attribute.String("agent.stop_reason", string(reason)),
			attribute.Int("agent.iterations", res.Iterations),
			attribute.Int("agent.tool_calls", len(res.ToolCalls)),
		)
		logger.Info("loop execution finished",
			"stop_reason", reason,
			"iterations", res.Iterations,
			"tool_calls", len(res.ToolCalls),
			"total_tokens", res.Usage.TotalTokens,
			"duration", res.Duration,
		)
		return res
	}

	abort := func(err error) (Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrEmitFailed) {
			return finish(StopReasonError), err
		}
		return finish(StopReasonCanceled), err
	}

	modelFailure := func(err error) (Result, error) {
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("model call failed", "iteration", res.Iterations, "error", err)
		diag := APIResponseEvent(Diagnostic{Request: provider.RequestOf(err), Err: err})
		if emitErr := emitEvent(ctx, emit, diag); emitErr != nil {
			return abort(emitErr)
		}
		return finish(StopReasonAPIError), nil
	}

	p, err := l.providers.New(ctx, params.Provider, provider.Credentials{APIKey: params.APIKey})
	if err != nil {
		return modelFailure(fmt.Errorf("provider %s: %w", params.Provider, err))
	}

	system := BuildSystemPrompt(l.config.SystemPrompt, params.SystemPromptSuffix, l.now())
	tools := l.executor.Definitions()

	for l.config.MaxIterations == 0 || res.Iterations < l.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		if guard.overBudget() {
			return finish(StopReasonTokenBudget), nil
		}

		res.Iterations++
		logger.Debug("calling model", "iteration", res.Iterations, "messages", len(messages))

		resp, err := l.callModel(ctx, p, params, provider.CompletionRequest{
			Model:     params.Model,
			System:    system,
			Messages:  trimImages(messages, params.OnlyNMostRecentImages),
			Tools:     tools,
			MaxTokens: params.MaxTokens,
		}, emit)
		guard.charge(resp.Usage)
		if err != nil {
			// Blocks already emitted stay in the history.
			if len(resp.Content) > 0 {
				messages = append(messages, message.NewAssistantMessage(resp.Content...))
			}
			if errors.Is(err, ErrEmitFailed) || ctx.Err() != nil {
				return abort(errors.Join(err, ctx.Err()))
			}
			return modelFailure(err)
		}

		assistant := message.NewAssistantMessage(resp.Content...)
		messages = append(messages, assistant)

		uses := assistant.ToolUses()
		if len(uses) == 0 {
			return finish(StopReasonComplete), nil
		}

		stuck := false
		results := make([]message.ContentBlock, 0, len(uses))
		for _, use := range uses {
			rec := l.executor.Execute(ctx, use, params.SessionID)
			res.ToolCalls = append(res.ToolCalls, rec)
			results = append(results, rec.Result.Block(use.ID))
			if rec.Panicked {
				logger.Error("tool panicked", "tool", use.Name, "error", rec.Result.Error)
			}
			if err := emitEvent(ctx, emit, ToolResultEvent(rec.Result, use.ID)); err != nil {
				messages = append(messages, message.NewUserMessage(results...))
				return abort(err)
			}
			if guard.repeated(use.Name, use.Input) {
				stuck = true
			}
		}
		messages = append(messages, message.NewUserMessage(results...))

		if stuck {
			logger.Warn("repeated tool call detected", "threshold", l.config.LoopThreshold)
			return finish(StopReasonLoopDetected), nil
		}
	}

	return finish(StopReasonMaxIterations), nil
}

// callModel performs one model call and emits its content blocks and its
// api_response diagnostic. Streaming providers deliver each block as soon
// as it closes, so their diagnostic follows the content; otherwise the
// diagnostic comes first. On a mid-stream failure the returned response
// holds the blocks already emitted.
func (l *Loop) callModel(ctx context.Context, p provider.Provider, params Params, req provider.CompletionRequest, emit Emitter) (provider.CompletionResponse, error) {
	ctx, span := l.tracer.Start(ctx, "agent.model_call", trace.WithAttributes(
		attribute.String("agent.provider", string(params.Provider)),
		attribute.String("agent.model", req.Model),
		attribute.Int("agent.messages", len(req.Messages)),
	))
	defer span.End()

	start := l.now()
	streamer, streaming := p.(provider.Streamer)

	var (
		resp provider.CompletionResponse
		err  error
	)
	if streaming {
		resp, err = streamer.Stream(ctx, req, func(b message.ContentBlock) error {
			return emitEvent(ctx, emit, ContentEvent(b))
		})
	} else {
		resp, err = p.Complete(ctx, req)
	}

	l.observer.ObserveModelCall(params.Provider, req.Model, l.now().Sub(start), resp.Usage, err)
	span.SetAttributes(
		attribute.Int("agent.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("agent.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	diag := APIResponseEvent(Diagnostic{
		Request: resp.Request,
		Response: &ResponseSummary{
			ID:           resp.ID,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
		},
	})
	if err := emitEvent(ctx, emit, diag); err != nil {
		return resp, err
	}
	if streaming {
		return resp, nil
	}
	for _, b := range resp.Content {
		if err := emitEvent(ctx, emit, ContentEvent(b)); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func emitEvent(ctx context.Context, emit Emitter, ev Event) error {
	if err := emit.Emit(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEmitFailed, ev.Kind, err)
	}
	return nil
}

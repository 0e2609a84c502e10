// Package tooltest provides a scriptable tool.Tool for tests.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/agentbridge/internal/tool"
)

// RunFunc is the body of a fake tool.
type RunFunc func(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Result, error)

// Tool is a fake tool.Tool that records every call.
type Tool struct {
	ToolName   string
	ToolScopes []tool.Scope
	Run        RunFunc

	mu   sync.Mutex
	args []json.RawMessage
	envs []tool.ExecutionEnv
}

var _ tool.Tool = (*Tool)(nil)

// New returns a read-only tool that runs fn.
func New(name string, fn RunFunc) *Tool {
	return &Tool{ToolName: name, ToolScopes: []tool.Scope{tool.ScopeReadOnly}, Run: fn}
}

// Returning returns a read-only tool that answers every call with res.
func Returning(name string, res tool.Result) *Tool {
	return New(name, func(context.Context, json.RawMessage, tool.ExecutionEnv) (tool.Result, error) {
		return res, nil
	})
}

func (t *Tool) Name() string            { return t.ToolName }
func (t *Tool) Description() string     { return "fake tool " + t.ToolName }
func (t *Tool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t *Tool) Scopes() []tool.Scope    { return t.ToolScopes }

func (t *Tool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Result, error) {
	t.mu.Lock()
	t.args = append(t.args, args)
	t.envs = append(t.envs, env)
	t.mu.Unlock()

	if t.Run == nil {
		return tool.Result{Output: "ok"}, nil
	}
	return t.Run(ctx, args, env)
}

// Calls returns how many times Execute ran.
func (t *Tool) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.args)
}

// Args returns the arguments of every call, oldest first.
func (t *Tool) Args() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]json.RawMessage(nil), t.args...)
}

// Envs returns the environment of every call, oldest first.
func (t *Tool) Envs() []tool.ExecutionEnv {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tool.ExecutionEnv(nil), t.envs...)
}

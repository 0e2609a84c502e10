package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/tool"
	"github.com/flemzord/agentbridge/internal/tool/tooltest"
	"github.com/flemzord/agentbridge/pkg/message"
)

// recordingObserver captures observations for assertions.
type recordingObserver struct {
	mu         sync.Mutex
	modelCalls []error
	toolCalls  map[string]bool
}

func (o *recordingObserver) ObserveModelCall(_ provider.Kind, _ string, _ time.Duration, _ provider.TokenUsage, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modelCalls = append(o.modelCalls, err)
}

func (o *recordingObserver) ObserveToolCall(name string, _ time.Duration, isError bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.toolCalls == nil {
		o.toolCalls = make(map[string]bool)
	}
	o.toolCalls[name] = isError
}

func newTestRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("Register(%s): %v", tl.Name(), err)
		}
	}
	return reg
}

func toolUse(id, name, input string) message.ContentBlock {
	return message.NewToolUseBlock(id, name, json.RawMessage(input))
}

func TestToolExecutor_Success(t *testing.T) {
	t.Parallel()

	bash := tooltest.Returning("bash", tool.Result{Output: "file1.txt\nfile2.txt"})
	obs := &recordingObserver{}
	exec := NewToolExecutor(ToolExecutorConfig{
		Tools:    newTestRegistry(t, bash),
		Env:      tool.ExecutionEnv{Workspace: "/work"},
		Observer: obs,
	})

	rec := exec.Execute(context.Background(), toolUse("tu_1", "bash", `{"command":"ls"}`), "sess-1")

	if rec.ID != "tu_1" || rec.Name != "bash" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Result.Output != "file1.txt\nfile2.txt" {
		t.Errorf("Output = %q", rec.Result.Output)
	}
	if rec.Panicked {
		t.Error("unexpected panic flag")
	}
	if envs := bash.Envs(); len(envs) != 1 || envs[0].Workspace != "/work" || envs[0].SessionID != "sess-1" {
		t.Errorf("envs = %+v", envs)
	}
	if string(bash.Args()[0]) != `{"command":"ls"}` {
		t.Errorf("args = %s", bash.Args()[0])
	}
	if isErr, ok := obs.toolCalls["bash"]; !ok || isErr {
		t.Errorf("observer toolCalls = %v", obs.toolCalls)
	}
}

func TestToolExecutor_Failures(t *testing.T) {
	t.Parallel()

	failing := tooltest.New("failing", func(context.Context, json.RawMessage, tool.ExecutionEnv) (tool.Result, error) {
		return tool.Result{}, errors.New("exit status 2")
	})
	panicking := tooltest.New("panicking", func(context.Context, json.RawMessage, tool.ExecutionEnv) (tool.Result, error) {
		panic("boom")
	})
	denied := tooltest.Returning("denied", tool.Result{Output: "never"})

	reg := newTestRegistry(t, failing, panicking, denied)
	if err := reg.SetPolicy(tool.Policy{Deny: []string{"denied"}}); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	exec := NewToolExecutor(ToolExecutorConfig{Tools: reg})

	tests := []struct {
		name     string
		tool     string
		wantErr  string
		panicked bool
	}{
		{name: "tool error", tool: "failing", wantErr: "exit status 2"},
		{name: "panic", tool: "panicking", wantErr: "panic: boom", panicked: true},
		{name: "unknown tool", tool: "missing", wantErr: tool.ErrToolNotFound.Error()},
		{name: "policy denial", tool: "denied", wantErr: tool.ErrDenied.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := exec.Execute(context.Background(), toolUse("tu", tt.tool, `{}`), "")
			if !rec.Result.IsError() {
				t.Fatal("expected error result")
			}
			if !strings.Contains(rec.Result.Error, tt.wantErr) {
				t.Errorf("Error = %q, want substring %q", rec.Result.Error, tt.wantErr)
			}
			if rec.Panicked != tt.panicked {
				t.Errorf("Panicked = %v, want %v", rec.Panicked, tt.panicked)
			}
		})
	}

	if denied.Calls() != 0 {
		t.Error("denied tool must not run")
	}
}

func TestToolExecutor_Definitions(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t,
		tooltest.Returning("bash", tool.Result{}),
		tooltest.Returning("str_replace_editor", tool.Result{}),
		tooltest.Returning("secret", tool.Result{}),
	)
	if err := reg.SetPolicy(tool.Policy{Deny: []string{"secret"}}); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}

	defs := NewToolExecutor(ToolExecutorConfig{Tools: reg}).Definitions()

	if len(defs) != 2 {
		t.Fatalf("len(defs) = %d, want 2", len(defs))
	}
	if defs[0].Name != "bash" || defs[1].Name != "str_replace_editor" {
		t.Errorf("defs = %+v", defs)
	}
	if string(defs[0].Parameters) != `{"type":"object"}` {
		t.Errorf("Parameters = %s", defs[0].Parameters)
	}
}

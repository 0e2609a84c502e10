package bash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/tool"
)

const (
	toolName = "bash"

	// waitDelay bounds how long output pipes are drained after the shell
	// is killed, in case a background child keeps them open.
	waitDelay = 500 * time.Millisecond

	clippedNote = "\n<response clipped><NOTE>Output was truncated. Narrow the command (grep, head, tail) to see the rest.</NOTE>"
)

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "command": {"type": "string", "description": "The bash command to run."},
    "restart": {"type": "boolean", "description": "Restart the tool. Every command already runs in a fresh shell."}
  }
}`)

// Sandbox runs a command in an isolated environment.
// *security.SandboxExecutor implements it.
type Sandbox interface {
	Execute(ctx context.Context, command, workdir string, env []string) (security.SandboxResult, error)
}

type input struct {
	Command string `json:"command"`
	Restart bool   `json:"restart"`
}

// Tool runs shell commands. Each call starts a fresh shell in the
// workspace with a sanitized environment: stdout becomes the result
// output and stderr the result error.
type Tool struct {
	shell       string
	timeout     time.Duration
	maxOutput   int
	credentials *security.CredentialStore
	sandbox     Sandbox
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return toolName }

// Description implements tool.Tool.
func (t *Tool) Description() string {
	return "Run a bash command in the workspace. Each call starts a new shell; " +
		"state such as the working directory does not persist between calls. " +
		"Commands are killed after " + t.timeout.String() + "."
}

// Schema implements tool.Tool.
func (t *Tool) Schema() json.RawMessage { return schema }

// Scopes implements tool.Tool.
func (t *Tool) Scopes() []tool.Scope { return []tool.Scope{tool.ScopeExec} }

// Execute implements tool.Tool.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Result, error) {
	var in input
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return tool.Result{}, fmt.Errorf("%w: %w", tool.ErrInvalidInput, err)
		}
	}
	if in.Restart {
		return tool.Result{System: "tool has been restarted."}, nil
	}
	if strings.TrimSpace(in.Command) == "" {
		return tool.Errorf("no command provided."), nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if t.sandbox != nil {
		return t.runSandboxed(ctx, in.Command, env)
	}
	return t.run(ctx, in.Command, env)
}

func (t *Tool) run(ctx context.Context, command string, env tool.ExecutionEnv) (tool.Result, error) {
	//nolint:gosec // running model-provided commands is the purpose of this tool.
	cmd := exec.CommandContext(ctx, t.shell, "-c", command)
	cmd.Dir = env.Workspace
	cmd.Env = security.SanitizedEnv(t.credentials)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tool.Errorf("timed out: bash has not returned in %s and was killed", t.timeout), nil
	}
	if ctx.Err() != nil {
		return tool.Result{}, ctx.Err()
	}

	res := tool.Result{
		Output: t.clip(strings.TrimSuffix(stdout.String(), "\n")),
		Error:  t.clip(strings.TrimSuffix(stderr.String(), "\n")),
	}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		if res.Error == "" {
			res.Error = fmt.Sprintf("command exited with status %d", exitErr.ExitCode())
		}
	case err != nil:
		return tool.Result{}, fmt.Errorf("bash: start %s: %w", t.shell, err)
	}
	return res, nil
}

func (t *Tool) runSandboxed(ctx context.Context, command string, env tool.ExecutionEnv) (tool.Result, error) {
	out, err := t.sandbox.Execute(ctx, command, env.Workspace, nil)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tool.Errorf("timed out: bash has not returned in %s and was killed", t.timeout), nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, ctx.Err()
		}
		return tool.Errorf("sandboxed command failed: %v", err), nil
	}
	res := tool.Result{
		Output: t.clip(strings.TrimSuffix(string(out.Stdout), "\n")),
		Error:  t.clip(strings.TrimSuffix(string(out.Stderr), "\n")),
	}
	if out.ExitCode != 0 && res.Error == "" {
		res.Error = fmt.Sprintf("command exited with status %d", out.ExitCode)
	}
	return res, nil
}

// clip truncates s to maxOutput bytes on a line boundary when possible.
func (t *Tool) clip(s string) string {
	if t.maxOutput <= 0 || len(s) <= t.maxOutput {
		return s
	}
	cut := s[:t.maxOutput]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + clippedNote
}

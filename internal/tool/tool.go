// Package tool defines the tool interface and registry for agentbridge.
// Tools are the only way the model acts on the host: every tool_use block
// the model emits is resolved against the registry and filtered by policy.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Registry and policy errors.
var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrDenied          = errors.New("tool execution denied by policy")
	ErrNoScopes        = errors.New("tool must declare at least one scope")
	ErrInvalidToolName = errors.New("invalid tool name")
	ErrDuplicateTool   = errors.New("tool already registered")

	// ErrToolInMultipleLists is returned by Policy.Validate when a name or
	// scope is both allowed and denied.
	ErrToolInMultipleLists = errors.New("tool appears in conflicting policy lists")

	// ErrInvalidInput wraps argument decoding failures. Tools return it as
	// an error, not a Result, so the executor reports a malformed call.
	ErrInvalidInput = errors.New("invalid tool input")
)

// The Messages API accepts tool names matching this pattern.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateName reports ErrInvalidToolName for a name the model API would
// reject.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}
	return nil
}

// Scope declares what kind of access a tool requires.
type Scope string

// Scopes a tool can declare. Policies allow or deny by scope as well as
// by name.
const (
	ScopeReadOnly  Scope = "read_only"
	ScopeReadWrite Scope = "read_write"
	ScopeExec      Scope = "exec"
	ScopeNetwork   Scope = "network"
)

// Tool is implemented by everything the model can call.
type Tool interface {
	Name() string
	Description() string

	// Schema is the JSON Schema of the input object.
	Schema() json.RawMessage

	// Scopes must not be empty.
	Scopes() []Scope

	// Execute runs one call. A returned error means the tool could not run
	// at all; failures the model should see go in Result.Error.
	Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Result, error)
}

// ExecutionEnv is what a tool learns about the call site. It carries no
// secrets; tools that need credentials get them from the credential store.
type ExecutionEnv struct {
	Workspace string
	DataDir   string
	SessionID string
}

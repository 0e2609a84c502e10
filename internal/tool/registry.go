package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flemzord/agentbridge/internal/security"
)

// RegistryService is the AppContext service name of the shared *Registry.
const RegistryService = "tool.registry"

// auditDetailLimit bounds the bytes of arguments or output copied into
// one audit event.
const auditDetailLimit = 4096

// Schema describes a tool offered to the model.
type Schema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Registry holds the tools of one App. Every call goes through Execute,
// which applies the policy and the tool_call rate limit and writes a
// tool_call and a tool_result audit event around the run.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	policy  Policy
	audit   *security.AuditLogger
	limiter *security.RateLimiter
}

// NewRegistry creates an empty registry with a permissive policy.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetPolicy replaces the policy after validating it.
func (r *Registry) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
	return nil
}

// SetAuditLogger sets where tool activity is recorded.
func (r *Registry) SetAuditLogger(l *security.AuditLogger) {
	r.mu.Lock()
	r.audit = l
	r.mu.Unlock()
}

// SetRateLimiter sets the limiter charged once per call.
func (r *Registry) SetRateLimiter(l *security.RateLimiter) {
	r.mu.Lock()
	r.limiter = l
	r.mu.Unlock()
}

// Register adds t. The name must be accepted by ValidateName and unique,
// and t must declare a scope.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(t.Scopes()) == 0 {
		return fmt.Errorf("%w: %s", ErrNoScopes, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Names lists every registered tool, permitted or not, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

// Schemas lists the tools the policy permits, sorted by name. This is the
// tool list sent to the model.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Schema
	for _, name := range slices.Sorted(maps.Keys(r.tools)) {
		t := r.tools[name]
		if r.policy.Permits(t) {
			out = append(out, Schema{Name: name, Description: t.Description(), Schema: t.Schema()})
		}
	}
	return out
}

// Execute runs the named tool. Unknown, denied and rate-limited calls
// return an error without running anything.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, env ExecutionEnv) (Result, error) {
	t, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}

	r.mu.RLock()
	policy, audit, limiter := r.policy, r.audit, r.limiter
	r.mu.RUnlock()

	rec := auditor{log: audit, session: env.SessionID, tool: name}
	if !policy.Permits(t) {
		return Result{}, fmt.Errorf("%w: %s", ErrDenied, name)
	}
	if limiter != nil {
		if err := limiter.Allow(security.KindToolCall); err != nil {
			rec.event(security.EventRateLimit, "tool_call rate limit exceeded", nil)
			return Result{}, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	rec.event(security.EventToolCall, clip(string(args)), nil)
	began := time.Now()
	res, err := t.Execute(ctx, args, env)
	rec.result(res, err, time.Since(began))
	return res, err
}

// auditor writes the events of one call. A nil log discards them.
type auditor struct {
	log     *security.AuditLogger
	session string
	tool    string
}

func (a auditor) event(typ security.EventType, detail string, meta map[string]string) {
	if a.log == nil {
		return
	}
	a.log.Log(security.AuditEvent{
		Type:      typ,
		SessionID: a.session,
		ToolName:  a.tool,
		Detail:    detail,
		Metadata:  meta,
	})
}

func (a auditor) result(res Result, err error, took time.Duration) {
	detail := clip(res.Output)
	switch {
	case err != nil:
		detail = "error: " + err.Error()
	case res.IsError():
		detail = "error: " + clip(res.Error)
	}
	a.event(security.EventToolResult, detail, map[string]string{
		"is_error":    strconv.FormatBool(err != nil || res.IsError()),
		"has_image":   strconv.FormatBool(res.Base64Image != ""),
		"duration_ms": strconv.FormatInt(took.Milliseconds(), 10),
	})
}

// clip cuts s to auditDetailLimit bytes on a rune boundary.
func clip(s string) string {
	if len(s) <= auditDetailLimit {
		return s
	}
	end := auditDetailLimit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "...(truncated)"
}

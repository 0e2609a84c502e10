// Package core provides the module system foundation for agentbridge.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownModule is returned when no module is registered under an ID.
	ErrUnknownModule = errors.New("unknown module")

	// ErrServiceMissing is returned by RequireService when nothing is
	// registered under the requested name.
	ErrServiceMissing = errors.New("service not registered")
)

// Phase names a step of module loading.
type Phase string

// Loading phases, in the order LoadModule runs them.
const (
	PhaseConfigure Phase = "configure"
	PhaseProvision Phase = "provision"
	PhaseValidate  Phase = "validate"
)

// ModuleError reports which module failed to load and in which phase.
type ModuleError struct {
	ID    ModuleID
	Phase Phase
	Err   error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s module %s: %v", e.Phase, e.ID, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// AppContext is handed to every module during loading. It carries the
// module-scoped logger, the data and workspace directories, the raw
// per-module configuration and the service registry shared by all
// modules of one App.
type AppContext struct {
	Logger *slog.Logger

	// DataDir holds persistent state such as the ledger database.
	DataDir string

	// Workspace is the directory tools operate in.
	Workspace string

	root     *slog.Logger
	configs  map[string]yaml.Node
	services *services
}

type services struct {
	mu     sync.RWMutex
	byName map[string]any
}

// NewAppContext creates a root context. A nil logger selects slog.Default.
func NewAppContext(logger *slog.Logger, dataDir, workspace string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:    logger,
		DataDir:   dataDir,
		Workspace: workspace,
		root:      logger,
		services:  &services{byName: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of ctx holding the raw configuration of
// each module, keyed by module ID. The service registry stays shared.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ModuleConfig returns a copy of the raw configuration for id.
func (ctx *AppContext) ModuleConfig(id ModuleID) (*yaml.Node, bool) {
	node, ok := ctx.configs[string(id)]
	if !ok {
		return nil, false
	}
	return &node, true
}

// ForModule returns a context whose logger carries the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes svc under name for the other modules. A second
// registration under the same name replaces the first.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.byName[name] = svc
}

// Service returns the service registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.byName[name]
	return svc, ok
}

// ServiceAs looks up an optional service. It reports false when the
// service is missing or is not a T.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	svc, ok := ctx.Service(name)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := svc.(T)
	return typed, ok
}

// RequireService looks up a service a module cannot work without.
func RequireService[T any](ctx *AppContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrServiceMissing, name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %s is %T, want %T", name, svc, zero)
	}
	return typed, nil
}

// LoadModule builds the module registered under id and runs, for each
// interface it implements:
//
//	Configure (only when a config entry exists) → Provision → Validate
//
// A failure is returned as a *ModuleError.
func (ctx *AppContext) LoadModule(id ModuleID) (Module, error) {
	info, ok := GetModule(string(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, ok := ctx.ModuleConfig(id); ok {
			if err := c.Configure(node); err != nil {
				return nil, &ModuleError{ID: id, Phase: PhaseConfigure, Err: err}
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(id)); err != nil {
			return nil, &ModuleError{ID: id, Phase: PhaseProvision, Err: err}
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &ModuleError{ID: id, Phase: PhaseValidate, Err: err}
		}
	}
	return mod, nil
}

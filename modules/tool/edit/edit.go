// Package edit provides the tool.edit module: a file viewer and editor
// (str_replace_editor) registered in the shared tool registry.
package edit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/tool"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ tool.Tool         = (*Tool)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Config holds the editor tool configuration.
type Config struct {
	// MaxOutput caps view output, in bytes. Defaults to 16000.
	MaxOutput int `yaml:"max_output"`

	// HistoryDepth is the number of undoable edits kept per file and
	// session. Defaults to 10.
	HistoryDepth int `yaml:"history_depth"`

	// RestrictToWorkspace rejects paths outside the workspace.
	RestrictToWorkspace bool `yaml:"restrict_to_workspace"`
}

func (c *Config) defaults() {
	if c.MaxOutput == 0 {
		c.MaxOutput = 16000
	}
	if c.HistoryDepth == 0 {
		c.HistoryDepth = 10
	}
}

// Module registers the editor tool.
type Module struct {
	config Config
	logger *slog.Logger
	tool   *Tool
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tool.edit",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("edit: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	registry, err := core.RequireService[*tool.Registry](ctx, tool.RegistryService)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}

	m.tool = New(m.config.MaxOutput, m.config.HistoryDepth, m.config.RestrictToWorkspace)
	if err := registry.Register(m.tool); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	m.logger.Info("editor tool registered",
		"history_depth", m.config.HistoryDepth,
		"restrict_to_workspace", m.config.RestrictToWorkspace,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	var errs []error
	if m.config.MaxOutput < 0 {
		errs = append(errs, errors.New("edit: max_output must not be negative"))
	}
	if m.config.HistoryDepth < 0 {
		errs = append(errs, errors.New("edit: history_depth must not be negative"))
	}
	return errors.Join(errs...)
}

// Tool returns the registered tool.
func (m *Module) Tool() *Tool {
	return m.tool
}

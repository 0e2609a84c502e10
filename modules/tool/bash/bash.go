// Package bash provides the tool.bash module: a shell command tool
// registered in the shared tool registry.
package bash

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/security"
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
	_ Sandbox           = (*security.SandboxExecutor)(nil)
)

// Config holds the bash tool configuration.
type Config struct {
	// Shell is the interpreter invoked with -c. Defaults to bash, or sh
	// when bash is not on PATH.
	Shell string `yaml:"shell"`

	// Timeout kills commands that run longer. Defaults to 120s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxOutput caps stdout and stderr, in bytes. Defaults to 16000.
	MaxOutput int `yaml:"max_output"`

	// Sandbox runs commands in a Docker container instead of the host.
	Sandbox security.SandboxConfig `yaml:"sandbox"`
}

func (c *Config) defaults() {
	if c.Shell == "" {
		c.Shell = "bash"
		if _, err := exec.LookPath("bash"); err != nil {
			c.Shell = "sh"
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = 16000
	}
}

// Module registers the bash tool.
type Module struct {
	config Config
	logger *slog.Logger
	tool   *Tool
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tool.bash",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("bash: decode config: %w", err)
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
		return fmt.Errorf("bash: %w", err)
	}
	creds, _ := core.ServiceAs[*security.CredentialStore](ctx, security.CredentialsService)

	m.tool = &Tool{
		shell:       m.config.Shell,
		timeout:     m.config.Timeout,
		maxOutput:   m.config.MaxOutput,
		credentials: creds,
	}
	if m.config.Sandbox.Enabled {
		m.tool.sandbox = security.NewSandboxExecutor(m.config.Sandbox)
	}

	if err := registry.Register(m.tool); err != nil {
		return fmt.Errorf("bash: %w", err)
	}
	m.logger.Info("bash tool registered",
		"shell", m.config.Shell,
		"timeout", m.config.Timeout,
		"sandbox", m.config.Sandbox.Enabled,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Sandbox.Enabled {
		if err := security.DockerAvailable(); err != nil {
			return fmt.Errorf("bash: %w", err)
		}
		return nil
	}
	if _, err := exec.LookPath(m.config.Shell); err != nil {
		return fmt.Errorf("bash: shell %q: %w", m.config.Shell, err)
	}
	return nil
}

// Tool returns the registered tool.
func (m *Module) Tool() *Tool {
	return m.tool
}

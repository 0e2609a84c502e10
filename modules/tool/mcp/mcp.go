// Package mcp provides the tool.mcp module. It starts external MCP servers
// over stdio and registers each of their tools in the shared tool registry,
// so the model can call them like any built-in tool.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/tool"
	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ tool.Tool         = (*proxyTool)(nil)
	_ Client            = (*client.Client)(nil)
	_ core.Configurable  = (*Module)(nil)
	_ core.Provisioner   = (*Module)(nil)
	_ core.Validator     = (*Module)(nil)
	_ core.Stopper       = (*Module)(nil)
	_ core.HealthChecker = (*Module)(nil)
)

const clientName = "agentbridge"

var serverNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Config holds the MCP tool configuration.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`

	// StartupTimeout bounds server start, initialization and tool listing.
	// Defaults to 30s.
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// CallTimeout bounds each tool call. Defaults to 120s.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// ServerConfig describes one MCP server launched as a child process.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	// ToolPrefix is prepended to every tool name. Defaults to "<name>_".
	ToolPrefix *string `yaml:"tool_prefix"`

	// Tools restricts registration to the listed remote tool names.
	Tools []string `yaml:"tools"`

	// Scopes declared for the proxied tools. Defaults to exec.
	Scopes []tool.Scope `yaml:"scopes"`
}

func (s ServerConfig) prefix() string {
	if s.ToolPrefix != nil {
		return *s.ToolPrefix
	}
	return s.Name + "_"
}

func (s ServerConfig) scopes() []tool.Scope {
	if len(s.Scopes) == 0 {
		return []tool.Scope{tool.ScopeExec}
	}
	return s.Scopes
}

func (c *Config) defaults() {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 30 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 120 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		switch {
		case !serverNameRe.MatchString(s.Name):
			errs = append(errs, fmt.Errorf("mcp: servers[%d]: invalid name %q", i, s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("mcp: servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("mcp: server %q: command is required", s.Name))
		}
		for _, sc := range s.Scopes {
			if !slices.Contains([]tool.Scope{tool.ScopeReadOnly, tool.ScopeReadWrite, tool.ScopeExec, tool.ScopeNetwork}, sc) {
				errs = append(errs, fmt.Errorf("mcp: server %q: unknown scope %q", s.Name, sc))
			}
		}
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("mcp: call_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Dialer starts a connection to the server described by cfg.
type Dialer func(ctx context.Context, cfg ServerConfig, env []string) (Client, error)

func dialStdio(_ context.Context, cfg ServerConfig, env []string) (Client, error) {
	return client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
}

// Module connects to the configured MCP servers and registers their tools.
type Module struct {
	config Config
	logger *slog.Logger
	dial   Dialer

	mu      sync.Mutex
	clients map[string]Client
	tools   []string
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tool.mcp",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("mcp: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. Every server is started and
// initialized before the module is considered provisioned.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.dial == nil {
		m.dial = dialStdio
	}
	if err := m.config.validate(); err != nil {
		return err
	}

	registry, err := core.RequireService[*tool.Registry](ctx, tool.RegistryService)
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	creds, _ := core.ServiceAs[*security.CredentialStore](ctx, security.CredentialsService)

	m.clients = make(map[string]Client, len(m.config.Servers))
	for _, srv := range m.config.Servers {
		if err := m.connect(registry, creds, srv); err != nil {
			_ = m.closeAll()
			return err
		}
	}
	return nil
}

func (m *Module) connect(registry *tool.Registry, creds *security.CredentialStore, srv ServerConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.StartupTimeout)
	defer cancel()

	env := security.SanitizedEnv(creds)
	keys := make([]string, 0, len(srv.Env))
	for k := range srv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+srv.Env[k])
	}

	c, err := m.dial(ctx, srv, env)
	if err != nil {
		return fmt.Errorf("mcp: start server %q: %w", srv.Name, err)
	}
	m.clients[srv.Name] = c

	var initReq mcpgo.InitializeRequest
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: core.Version}
	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		return fmt.Errorf("mcp: initialize server %q: %w", srv.Name, err)
	}

	remote, err := listTools(ctx, c)
	if err != nil {
		return fmt.Errorf("mcp: list tools of %q: %w", srv.Name, err)
	}

	registered := 0
	for _, rt := range remote {
		if len(srv.Tools) > 0 && !slices.Contains(srv.Tools, rt.Name) {
			continue
		}
		pt, err := newProxyTool(srv.Name, srv.prefix(), rt, srv.scopes(), m.config.CallTimeout, c)
		if err != nil {
			return fmt.Errorf("mcp: server %q: %w", srv.Name, err)
		}
		if err := registry.Register(pt); err != nil {
			if errors.Is(err, tool.ErrInvalidToolName) {
				m.logger.Warn("mcp tool skipped", "server", srv.Name, "tool", rt.Name, "error", err)
				continue
			}
			return fmt.Errorf("mcp: server %q: %w", srv.Name, err)
		}
		m.tools = append(m.tools, pt.Name())
		registered++
	}

	m.logger.Info("mcp server connected",
		"server", srv.Name,
		"remote", initRes.ServerInfo.Name,
		"protocol", initRes.ProtocolVersion,
		"tools", registered,
	)
	return nil
}

// listTools follows pagination until the server returns no cursor.
func listTools(ctx context.Context, c Client) ([]mcpgo.Tool, error) {
	var all []mcpgo.Tool
	var req mcpgo.ListToolsRequest
	for {
		res, err := c.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" || res.NextCursor == req.Params.Cursor {
			return all, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if err := m.closeAll(); err != nil {
		m.logger.Warn("mcp: closing servers", "error", err)
		return err
	}
	return nil
}

// Health implements core.HealthChecker by pinging every server.
func (m *Module) Health(ctx context.Context) error {
	m.mu.Lock()
	clients := maps.Clone(m.clients)
	m.mu.Unlock()

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(clients)) {
		if err := clients[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mcp: server %q: ping: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Module) closeAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp: close %q: %w", name, err))
		}
	}
	m.clients = nil
	return errors.Join(errs...)
}

// Tools returns the registered tool names.
func (m *Module) Tools() []string {
	return slices.Clone(m.tools)
}

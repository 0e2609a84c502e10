package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/agentbridge/internal/agent"
	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/ledger"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/tool"
	"gopkg.in/yaml.v3"
)

// Service names published by the module.
const (
	HandlerService = "session.handler"
	StoreService   = "session.store"

	// ObserverService is the optional agent.Observer the loop reports to.
	ObserverService = "agent.observer"
	// MetricsService is the optional Metrics the handler reports to.
	MetricsService = "session.metrics"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the session channel configuration.
type Config struct {
	OriginPatterns []string         `yaml:"origin_patterns"`
	MaxBatchBytes  int              `yaml:"max_batch_bytes"`
	MaxJSONDepth   int              `yaml:"max_json_depth"`
	MaxSessions    int              `yaml:"max_sessions"`
	WriteTimeout   time.Duration    `yaml:"write_timeout"`
	Loop           agent.LoopConfig `yaml:"loop"`
}

func (c *Config) defaults() {
	if c.MaxBatchBytes <= 0 {
		c.MaxBatchBytes = defaultMaxBatchBytes
	}
	if c.MaxJSONDepth <= 0 {
		c.MaxJSONDepth = defaultMaxJSONDepth
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}

// Module is the WebSocket session channel. It builds the loop driver from
// the shared provider and tool registries and publishes the chat
// http.Handler for the gateway to mount.
type Module struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	handler *Handler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "session.websocket",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("session: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.appCtx = ctx
	m.logger = ctx.Logger

	providers, err := core.RequireService[*provider.Registry](ctx, provider.RegistryService)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	tools, ok := core.ServiceAs[*tool.Registry](ctx, tool.RegistryService)
	if !ok {
		tools = tool.NewRegistry()
	}
	observer, _ := core.ServiceAs[agent.Observer](ctx, ObserverService)

	loopCfg := m.config.Loop
	if loopCfg.Workspace == "" {
		loopCfg.Workspace = ctx.Workspace
	}
	executor := agent.NewToolExecutor(agent.ToolExecutorConfig{
		Tools:    tools,
		Env:      tool.ExecutionEnv{Workspace: loopCfg.Workspace, DataDir: ctx.DataDir},
		Observer: observer,
	})
	opts := []agent.Option{agent.WithLogger(m.logger)}
	if observer != nil {
		opts = append(opts, agent.WithObserver(observer))
	}
	loop := agent.NewLoop(providers, executor, loopCfg, opts...)

	cfg := HandlerConfig{
		Runner:         loop,
		Store:          NewStore(),
		Logger:         m.logger,
		Limits:         Limits{MaxBytes: m.config.MaxBatchBytes, MaxJSONDepth: m.config.MaxJSONDepth},
		MaxSessions:    m.config.MaxSessions,
		OriginPatterns: m.config.OriginPatterns,
		WriteTimeout:   m.config.WriteTimeout,
	}
	cfg.RateLimiter, _ = core.ServiceAs[*security.RateLimiter](ctx, security.RateLimiterService)
	cfg.Credentials, _ = core.ServiceAs[*security.CredentialStore](ctx, security.CredentialsService)
	cfg.Redactor, _ = core.ServiceAs[*security.Redactor](ctx, security.RedactorService)
	cfg.Audit, _ = core.ServiceAs[*security.AuditLogger](ctx, security.AuditService)
	cfg.Metrics, _ = core.ServiceAs[Metrics](ctx, MetricsService)

	m.handler = NewHandler(cfg)
	ctx.RegisterService(HandlerService, m.handler)
	ctx.RegisterService(StoreService, m.handler.Store())
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	var errs []error
	if m.config.Loop.DefaultMaxTokens < 0 {
		errs = append(errs, errors.New("session: loop.default_max_tokens must not be negative"))
	}
	if m.config.MaxSessions < 0 {
		errs = append(errs, errors.New("session: max_sessions must not be negative"))
	}
	return errors.Join(errs...)
}

// Start implements core.Starter. The ledger is resolved here so that the
// ledger module may be listed after this one.
func (m *Module) Start() error {
	if store, ok := core.ServiceAs[ledger.Store](m.appCtx, ledger.Service); ok {
		m.handler.cfg.Ledger = store
	}
	m.logger.Info("session channel ready",
		"max_sessions", m.handler.cfg.MaxSessions,
		"ledger", m.handler.cfg.Ledger != nil,
	)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.handler == nil {
		return nil
	}
	n := m.handler.Store().Len()
	m.handler.Shutdown()
	m.logger.Info("session channel stopped", "closed_sessions", n)
	return nil
}

// Handler returns the chat handler.
func (m *Module) Handler() *Handler {
	return m.handler
}

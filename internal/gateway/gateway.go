// Package gateway serves agentbridge over HTTP: the chat WebSocket, the
// liveness and readiness probes, Prometheus metrics and the admin API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/ledger"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/session"
	"github.com/flemzord/agentbridge/internal/tool"
	"gopkg.in/yaml.v3"
)

// Service names published or read by the gateway.
const (
	MetricsService = "gateway.metrics"
	HealthService  = "gateway.health"
)

// HealthReporter backs GET /ready. *core.App implements it.
type HealthReporter interface {
	Health(ctx context.Context) map[core.ModuleID]error
}

func init() {
	core.RegisterModule(&Gateway{})
}

var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the gateway.http module. Every other module is optional to
// it: a missing service only disables the routes that need it.
type Gateway struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger

	metrics     *Metrics
	audit       *security.AuditLogger
	rateLimiter *security.RateLimiter

	// Bound at Start, once every module has provisioned.
	chat      http.Handler
	sessions  *session.Store
	ledger    ledger.Store
	providers *provider.Registry
	tools     *tool.Registry
	scheduler *cron.Scheduler
	health    HealthReporter

	server    *http.Server
	listener  net.Listener
	startedAt time.Time
}

func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return new(Gateway) },
	}
}

func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger

	m, ok := core.ServiceAs[*Metrics](ctx, MetricsService)
	if !ok {
		m = NewMetrics()
		ctx.RegisterService(MetricsService, m)
	}
	g.metrics = m
	g.audit, _ = core.ServiceAs[*security.AuditLogger](ctx, security.AuditService)
	g.rateLimiter, _ = core.ServiceAs[*security.RateLimiter](ctx, security.RateLimiterService)

	if creds, ok := core.ServiceAs[*security.CredentialStore](ctx, security.CredentialsService); ok {
		for name, value := range g.config.Auth.secrets() {
			creds.Set(name, value)
		}
	}
	return nil
}

func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start binds the listener synchronously so a port conflict fails the
// App start, then serves in the background.
func (g *Gateway) Start() error {
	g.bind()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	g.listener = ln
	g.startedAt = time.Now()
	g.server = &http.Server{
		Handler:           g.routes(),
		ReadHeaderTimeout: g.config.ReadHeaderTimeout,
	}

	g.logger.Info("gateway listening", "addr", ln.Addr().String(), "chat", g.chat != nil, "admin", g.config.Auth.IsConfigured())
	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve failed", "error", err)
		}
	}()
	return nil
}

func (g *Gateway) bind() {
	ctx := g.appCtx
	g.chat, _ = core.ServiceAs[http.Handler](ctx, session.HandlerService)
	g.sessions, _ = core.ServiceAs[*session.Store](ctx, session.StoreService)
	g.ledger, _ = core.ServiceAs[ledger.Store](ctx, ledger.Service)
	g.providers, _ = core.ServiceAs[*provider.Registry](ctx, provider.RegistryService)
	g.tools, _ = core.ServiceAs[*tool.Registry](ctx, tool.RegistryService)
	g.scheduler, _ = core.ServiceAs[*cron.Scheduler](ctx, cron.Service)
	g.health, _ = core.ServiceAs[HealthReporter](ctx, HealthService)
	if g.chat == nil {
		g.logger.Warn("no session handler published, chat endpoint disabled")
	}
}

// Addr is the bound address, or "" before Start.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop drains plain HTTP requests. Chat sockets are hijacked and belong
// to session.websocket, which closes them itself.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	if err := g.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}

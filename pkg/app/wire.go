package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/flemzord/agentbridge/internal/config"
	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/gateway"
	"github.com/flemzord/agentbridge/internal/ledger"
	"github.com/flemzord/agentbridge/internal/provider"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/session"
	"github.com/flemzord/agentbridge/internal/tool"
)

// memoryLedgerRetention bounds the in-memory ledger used when no ledger
// module is configured.
const memoryLedgerRetention = 24 * time.Hour

// services holds the shared components the host publishes before any
// module is provisioned.
type services struct {
	credentials *security.CredentialStore
	redactor    *security.Redactor
	audit       *security.AuditLogger
	auditFile   io.Closer
	rateLimiter *security.RateLimiter
	providers   *provider.Registry
	tools       *tool.Registry
	scheduler   *cron.Scheduler
	metrics     *gateway.Metrics
}

// newServices builds the shared components from cfg. The audit file, when
// configured, is opened relative to dataDir.
func newServices(cfg *config.Config, credentials *security.CredentialStore, redactor *security.Redactor, logger *slog.Logger, dataDir string) (*services, error) {
	s := &services{
		credentials: credentials,
		redactor:    redactor,
		providers:   provider.NewRegistry(),
		tools:       tool.NewRegistry(),
		scheduler:   cron.NewScheduler(logger.With("component", "cron")),
		metrics:     gateway.NewMetrics(),
	}

	var limits security.RateLimitConfig
	auditCfg := config.AuditConfig{}
	if cfg.Security != nil {
		limits = cfg.Security.RateLimits
		auditCfg = cfg.Security.Audit
		for _, expr := range cfg.Security.RedactPatterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("app: redact pattern %q: %w", expr, err)
			}
			redactor.AddPattern(re)
		}
	}
	s.rateLimiter = security.NewRateLimiter(limits)

	auditLoggerCfg := security.AuditLoggerConfig{Redactor: redactor}
	if auditCfg.Path != "" {
		path := auditCfg.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("app: audit directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("app: open audit file: %w", err)
		}
		auditLoggerCfg.Writer = f
		s.auditFile = f
	}
	s.audit = security.NewAuditLogger(auditLoggerCfg)

	if err := s.tools.SetPolicy(cfg.Tools.Policy); err != nil {
		s.close()
		return nil, fmt.Errorf("app: tool policy: %w", err)
	}
	s.tools.SetAuditLogger(s.audit)
	s.tools.SetRateLimiter(s.rateLimiter)
	return s, nil
}

// register publishes the services on appCtx. One Metrics value serves
// the gateway, the agent observer and the session metrics.
func (s *services) register(appCtx *core.AppContext) {
	appCtx.RegisterService(security.CredentialsService, s.credentials)
	appCtx.RegisterService(security.RedactorService, s.redactor)
	appCtx.RegisterService(security.AuditService, s.audit)
	appCtx.RegisterService(security.RateLimiterService, s.rateLimiter)
	appCtx.RegisterService(provider.RegistryService, s.providers)
	appCtx.RegisterService(tool.RegistryService, s.tools)
	appCtx.RegisterService(cron.Service, s.scheduler)
	appCtx.RegisterService(gateway.MetricsService, s.metrics)
	appCtx.RegisterService(session.ObserverService, s.metrics)
	appCtx.RegisterService(session.MetricsService, s.metrics)
}

// ensureLedger publishes an in-memory ledger when no ledger module did,
// with its own prune job.
func (s *services) ensureLedger(appCtx *core.AppContext, logger *slog.Logger) error {
	if _, ok := core.ServiceAs[ledger.Store](appCtx, ledger.Service); ok {
		return nil
	}
	store := ledger.NewInMemoryStore()
	appCtx.RegisterService(ledger.Service, store)
	job := &cron.LedgerPruneJob{
		Store:     store,
		Retention: memoryLedgerRetention,
		Logger:    logger,
	}
	if err := s.scheduler.RegisterJob(job); err != nil {
		return fmt.Errorf("app: register ledger prune job: %w", err)
	}
	logger.Info("no ledger module configured, using in-memory ledger", "retention", memoryLedgerRetention)
	return nil
}

func (s *services) close() {
	if s.auditFile != nil {
		_ = s.auditFile.Close()
	}
}

// schedulerModule lets the cron scheduler take part in the App lifecycle.
// It is appended after the configured modules so that every job is
// registered before it starts, and it stops first.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.scheduler",
		New: func() core.Module { return m },
	}
}

func (m *schedulerModule) Start() error {
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

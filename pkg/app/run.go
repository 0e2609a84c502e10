// Package app provides the shared entry point for the agentbridge binary:
// configuration loading, the logger, shared services and the module
// lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flemzord/agentbridge/internal/config"
	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/gateway"
	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/telemetry"
)

const telemetryShutdownTimeout = 10 * time.Second

// RunParams configures the application.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the configured persistent data directory.
	DataDir string

	// Workspace overrides the configured working directory.
	Workspace string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Instance is a loaded application: configuration parsed, modules
// provisioned and validated, ready to Start.
type Instance struct {
	ConfigPath string

	app       *core.App
	appCtx    *core.AppContext
	logger    *slog.Logger
	services  *services
	telemetry *telemetry.Provider
	modules   []string
}

// New loads the configuration and provisions every configured module.
func New(ctx context.Context, params RunParams) (*Instance, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if params.Version != "" {
		core.Version = params.Version
	}

	// Credential store and redactor come first so the logger never sees
	// an unredacted secret.
	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()
	redactor.Watch(credStore)

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(out, cfg.Log, redactor)
	if err != nil {
		return nil, err
	}

	dataDir := firstNonEmpty(params.DataDir, cfg.DataDir, DefaultDataDir())
	workspace := firstNonEmpty(params.Workspace, cfg.Workspace, DefaultWorkspace())
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("app: data directory: %w", err)
	}

	tp, err := telemetry.New(ctx, cfg.Telemetry, core.Version)
	if err != nil {
		return nil, err
	}
	tp.SetGlobal()

	svcs, err := newServices(cfg, credStore, redactor, logger, dataDir)
	if err != nil {
		shutdownTelemetry(tp, logger)
		return nil, err
	}

	appCtx := core.NewAppContext(logger, dataDir, workspace).WithModuleConfigs(cfg.Modules)
	svcs.register(appCtx)

	application := core.NewApp(appCtx)
	appCtx.RegisterService(gateway.HealthService, application)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		svcs.close()
		shutdownTelemetry(tp, logger)
		return nil, err
	}
	if err := svcs.ensureLedger(appCtx, logger.With("component", "ledger")); err != nil {
		svcs.close()
		shutdownTelemetry(tp, logger)
		return nil, err
	}
	application.AppendModule("cron.scheduler", &schedulerModule{scheduler: svcs.scheduler})

	logger.Info("agentbridge configured",
		"version", core.Version,
		"config", cfgPath,
		"data_dir", dataDir,
		"workspace", workspace,
		"modules", len(ids),
		"tracing", tp.Enabled(),
	)

	return &Instance{
		ConfigPath: cfgPath,
		app:        application,
		appCtx:     appCtx,
		logger:     logger,
		services:   svcs,
		telemetry:  tp,
		modules:    ids,
	}, nil
}

// Modules returns the configured module IDs in load order.
func (i *Instance) Modules() []string {
	return i.modules
}

// Logger returns the application logger.
func (i *Instance) Logger() *slog.Logger {
	return i.logger
}

// Start starts every module. It does not block.
func (i *Instance) Start() error {
	return i.app.Start()
}

// Stop stops the started modules in reverse order, flushes pending spans
// and closes the audit file.
func (i *Instance) Stop() {
	if err := i.app.Stop(); err != nil {
		i.logger.Error("shutdown incomplete", "error", err)
	}
	shutdownTelemetry(i.telemetry, i.logger)
	if n := i.services.audit.WriteErrors(); n > 0 {
		i.logger.Warn("audit events lost", "count", n)
	}
	i.services.close()
	i.logger.Info("shutdown complete")
}

// Run loads configuration, starts all modules, and blocks until SIGINT or
// SIGTERM is received.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inst, err := New(ctx, params)
	if err != nil {
		return err
	}
	if err := inst.Start(); err != nil {
		inst.Stop()
		return err
	}

	<-ctx.Done()
	inst.logger.Info("shutdown signal received")
	inst.Stop()
	return nil
}

func shutdownTelemetry(tp *telemetry.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/agentbridge/agentbridge.yaml →
// ~/.config/agentbridge/agentbridge.yaml → ./agentbridge.yaml
func ResolveConfigPath() (string, error) {
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// ConfigCandidates returns the locations searched by ResolveConfigPath.
// The first entry is where `config init` writes by default.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "agentbridge", "agentbridge.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "agentbridge", "agentbridge.yaml"))
	}
	return append(candidates, "agentbridge.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/agentbridge if set, otherwise
// ~/.local/share/agentbridge per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "agentbridge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "agentbridge")
}

// DefaultWorkspace returns the current working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}

// Package sqlite is the ledger.sqlite module: a run ledger persisted with
// the pure-Go modernc.org/sqlite driver, pruned by a job on the shared
// cron scheduler.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/ledger"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ ledger.Store       = (*Store)(nil)
	_ core.Configurable  = (*Module)(nil)
	_ core.Provisioner   = (*Module)(nil)
	_ core.Validator     = (*Module)(nil)
	_ core.Stopper       = (*Module)(nil)
	_ core.HealthChecker = (*Module)(nil)
)

// Module opens the database and publishes it as the ledger.Service.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "ledger.sqlite",
		New: func() core.Module { return new(Module) },
	}
}

func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, dbFile)
	}

	store, err := Open(context.Background(), m.config.Path, m.config.options())
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ledger.Service, store)

	if err := m.schedulePrune(ctx); err != nil {
		_ = store.Close()
		return err
	}

	m.logger.Info("ledger opened", "path", m.config.Path, "retention", m.config.Retention)
	return nil
}

// schedulePrune registers the retention job when retention is on and a
// scheduler is published.
func (m *Module) schedulePrune(ctx *core.AppContext) error {
	if m.config.Retention <= 0 {
		return nil
	}
	sched, ok := core.ServiceAs[*cron.Scheduler](ctx, cron.Service)
	if !ok {
		m.logger.Warn("no scheduler published, ledger will not be pruned")
		return nil
	}
	err := sched.RegisterJob(&cron.LedgerPruneJob{
		Store:     m.store,
		Retention: m.config.Retention,
		Logger:    m.logger,
		Spec:      m.config.PruneSchedule,
	})
	if err != nil {
		return fmt.Errorf("sqlite: prune job: %w", err)
	}
	return nil
}

func (m *Module) Validate() error {
	return m.config.validate()
}

func (m *Module) Health(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Store is the opened ledger, nil before Provision.
func (m *Module) Store() ledger.Store {
	return m.store
}

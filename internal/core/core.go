package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns an ordered set of modules. Modules start in load order and stop
// in reverse, so a module can rely on the ones loaded before it.
type App struct {
	ctx    *AppContext
	logger *slog.Logger

	modules []*moduleInstance

	// mu guards moduleInstance.running, which Health reads while Start
	// or Stop may be running.
	mu sync.Mutex
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp creates an App that loads modules through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads ids in order. On the first failure the modules loaded
// so far are stopped and the error is returned unchanged.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		begin := time.Now()
		mod, err := a.ctx.LoadModule(ModuleID(id))
		if err != nil {
			a.discard()
			return err
		}
		a.modules = append(a.modules, &moduleInstance{id: ModuleID(id), module: mod})
		a.logger.Info("module loaded", "module", id, "took", time.Since(begin).Round(time.Millisecond))
	}
	return nil
}

// AppendModule adds a module built by the host instead of the registry,
// such as the cron scheduler. It must be called before Start.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, &moduleInstance{id: id, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id ModuleID) (Module, bool) {
	for _, mi := range a.modules {
		if mi.id == id {
			return mi.module, true
		}
	}
	return nil, false
}

// Start runs every Starter in load order. A module without Starter is
// marked running as well, so its Stopper still runs at shutdown. When a
// Start fails, the modules already running are stopped.
func (a *App) Start() error {
	for _, mi := range a.modules {
		if s, ok := mi.module.(Starter); ok {
			a.logger.Info("starting module", "module", string(mi.id))
			if err := s.Start(); err != nil {
				a.logger.Error("module start failed", "module", string(mi.id), "error", err)
				_ = a.Stop()
				return fmt.Errorf("start module %s: %w", mi.id, err)
			}
		}
		a.setRunning(mi, true)
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops the running modules in reverse order. All of them share one
// shutdown deadline; their errors are joined.
func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.modules) - 1; i >= 0; i-- {
		mi := a.modules[i]
		if !a.isRunning(mi) {
			continue
		}
		a.setRunning(mi, false)
		if s, ok := mi.module.(Stopper); ok {
			a.logger.Info("stopping module", "module", string(mi.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop failed", "module", string(mi.id), "error", err)
				errs = append(errs, fmt.Errorf("stop module %s: %w", mi.id, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Health runs the HealthChecker of every running module. A nil entry
// means healthy.
func (a *App) Health(ctx context.Context) map[ModuleID]error {
	a.mu.Lock()
	var checkers []*moduleInstance
	for _, mi := range a.modules {
		if _, ok := mi.module.(HealthChecker); ok && mi.running {
			checkers = append(checkers, mi)
		}
	}
	a.mu.Unlock()

	out := make(map[ModuleID]error, len(checkers))
	for _, mi := range checkers {
		out[mi.id] = mi.module.(HealthChecker).Health(ctx)
	}
	return out
}

func (a *App) isRunning(mi *moduleInstance) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return mi.running
}

func (a *App) setRunning(mi *moduleInstance, v bool) {
	a.mu.Lock()
	mi.running = v
	a.mu.Unlock()
}

// discard releases the resources of modules that were provisioned but
// never started.
func (a *App) discard() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, mi := range slices.Backward(a.modules) {
		if s, ok := mi.module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}

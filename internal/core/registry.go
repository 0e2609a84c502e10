package core

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// registry holds the modules compiled into the binary. Modules add
// themselves from init functions; the configuration then selects which
// of them run.
type registry struct {
	mu    sync.RWMutex
	infos map[ModuleID]ModuleInfo
}

var compiled = &registry{infos: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the registry. It panics on an invalid
// or duplicate ID and on a nil constructor, so mistakes surface at
// process start.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := info.ID.Validate(); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	if _, exists := compiled.infos[info.ID]; exists {
		panic(fmt.Sprintf("module already registered: %s", info.ID))
	}
	compiled.infos[info.ID] = info
}

// GetModule returns the registered module with the given ID.
func GetModule(id string) (ModuleInfo, bool) {
	compiled.mu.RLock()
	defer compiled.mu.RUnlock()
	info, ok := compiled.infos[ModuleID(id)]
	return info, ok
}

// GetModules returns every registered module, sorted by ID.
func GetModules() []ModuleInfo {
	return compiled.filter(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules under namespace, sorted by
// ID: "provider" matches "provider.anthropic".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return compiled.filter(func(id ModuleID) bool { return id.In(namespace) })
}

func (r *registry) filter(keep func(ModuleID) bool) []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ModuleInfo
	for _, id := range slices.Sorted(maps.Keys(r.infos)) {
		if keep(id) {
			out = append(out, r.infos[id])
		}
	}
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	clear(compiled.infos)
}

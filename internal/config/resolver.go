package config

import (
	"cmp"
	"slices"
	"strings"

	"github.com/flemzord/agentbridge/internal/core"
)

// namespaceRank orders modules by role so that the services a module
// resolves in Start are already running: providers and the ledger first,
// the gateway last. Stop runs in reverse, so the gateway stops accepting
// connections before anything it depends on goes away.
var namespaceRank = map[string]int{
	"provider": 0,
	"ledger":   1,
	"tool":     2,
	"session":  3,
	"gateway":  4,
}

// otherRank places unknown namespaces with the tools.
const otherRank = 2

// Resolve returns the configured module IDs in load order: by role, then
// by ID within a role.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), strings.Compare(a, b))
	})
	return ids
}

func rank(id string) int {
	if r, ok := namespaceRank[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return otherRank
}

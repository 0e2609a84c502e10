package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModuleID names a module as namespace.name in lowercase, for example
// "provider.anthropic". The namespace is the module's role and decides
// its load rank.
type ModuleID string

var moduleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

func (id ModuleID) Validate() error {
	if !moduleIDPattern.MatchString(string(id)) {
		return fmt.Errorf("invalid module ID %q: want namespace.name in lowercase", string(id))
	}
	return nil
}

// Namespace is the first segment of id.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// In reports whether id lies under namespace, which may itself be dotted.
func (id ModuleID) In(namespace string) bool {
	return strings.HasPrefix(string(id), namespace+".")
}

// ModuleInfo is what a module registers: its ID and a constructor that
// returns a fresh, unconfigured instance.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

type Module interface {
	ModuleInfo() ModuleInfo
}

// A module implements any subset of the interfaces below. LoadModule
// runs Configure, Provision and Validate; App runs Start in load order
// and Stop in reverse.

type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults, reads the services published by modules
// loaded earlier and publishes its own.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator must not have side effects.
type Validator interface {
	Validate() error
}

// Starter is called once every module has provisioned, so services
// published by later modules are visible too.
type Starter interface {
	Start() error
}

// Stopper gets the shared shutdown deadline in ctx.
type Stopper interface {
	Stop(ctx context.Context) error
}

// HealthChecker backs the readiness probe for modules holding something
// that can fail while running: a database, a subprocess.
type HealthChecker interface {
	Health(ctx context.Context) error
}

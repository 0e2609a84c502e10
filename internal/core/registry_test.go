package core

import (
	"strings"
	"testing"
)

type namedModule struct {
	id    ModuleID
	noNew bool
}

func (m *namedModule) ModuleInfo() ModuleInfo {
	info := ModuleInfo{ID: m.id}
	if !m.noNew {
		info.New = func() Module { return &namedModule{id: m.id} }
	}
	return info
}

func TestModuleID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id        ModuleID
		valid     bool
		namespace string
	}{
		{"provider.anthropic", true, "provider"},
		{"tool.mcp.github", true, "tool"},
		{"ledger.sqlite", true, "ledger"},
		{"session", false, "session"},
		{"Tool.Bash", false, "Tool"},
		{"tool..bash", false, "tool"},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			t.Parallel()
			if err := tt.id.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, want valid %v", err, tt.valid)
			}
			if got := tt.id.Namespace(); got != tt.namespace {
				t.Errorf("Namespace() = %q, want %q", got, tt.namespace)
			}
		})
	}

	if !ModuleID("tool.mcp.github").In("tool.mcp") || ModuleID("toolbox.x").In("tool") {
		t.Error("In() mismatch")
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&namedModule{id: "test.dup"})

	tests := []struct {
		name   string
		module Module
		want   string
	}{
		{"duplicate", &namedModule{id: "test.dup"}, "already registered"},
		{"invalid id", &namedModule{id: "nodot"}, "invalid module ID"},
		{"nil constructor", &namedModule{id: "test.nonew", noNew: true}, "New function must not be nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil || !strings.Contains(r.(string), tt.want) {
					t.Errorf("panic = %v, want %q", r, tt.want)
				}
			}()
			RegisterModule(tt.module)
		})
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	t.Cleanup(resetRegistry)

	for _, id := range []ModuleID{"test.zeta", "test.alpha", "testing.other", "provider.fake"} {
		RegisterModule(&namedModule{id: id})
	}

	var got []string
	for _, info := range GetModulesByNamespace("test") {
		got = append(got, string(info.ID))
	}
	if strings.Join(got, ",") != "test.alpha,test.zeta" {
		t.Errorf("GetModulesByNamespace(test) = %v", got)
	}
	if _, ok := GetModule("provider.fake"); !ok {
		t.Error("GetModule(provider.fake) not found")
	}
	if n := len(GetModules()); n < 4 {
		t.Errorf("GetModules() returned %d modules", n)
	}
}
